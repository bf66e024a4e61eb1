package service

import (
	"context"
	"strings"
	"unicode"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/profile"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// outcome is what one judging run decided.
type outcome struct {
	answer   model.Answer
	total    int
	last     int
	approved int
	// input and output of the step that decided a non-accepted verdict.
	input  string
	output string
}

// judge loads everything the submission needs, provisions a sandbox and runs
// the compile and test steps. A returned error means no verdict was reached.
func (s *Service) judge(ctx context.Context, sub *model.Submission) (outcome, error) {
	problem, err := s.problems.FindByID(ctx, sub.ProblemID)
	if err != nil {
		return outcome{}, err
	}
	cases, err := s.problems.FindTestCases(ctx, problem)
	if err != nil {
		return outcome{}, err
	}
	prof, err := s.profiles.Get(sub.Language)
	if err != nil {
		return outcome{}, err
	}
	code, err := s.attachments.Download(ctx, sub.CodeKey)
	if err != nil {
		return outcome{}, err
	}
	sourcePath, cleanup, err := s.writeSource(sub, prof, code)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	h, err := s.sandbox.Create(ctx, prof.Image, problem.MemoryLimitMB, sandboxNamePrefix+sub.ID)
	if err != nil {
		return outcome{}, err
	}
	defer s.teardown(ctx, h)

	if err := s.sandbox.Start(ctx, h); err != nil {
		return outcome{}, err
	}
	if err := s.sandbox.CopyIn(ctx, h, sourcePath, prof.SourcePath()); err != nil {
		return outcome{}, err
	}
	return s.evaluate(ctx, h, prof, problem, cases)
}

// evaluate drives Compiling then RunningTestCase(i) until a verdict.
func (s *Service) evaluate(ctx context.Context, h sandbox.Handle, prof profile.Profile, problem *model.Problem, cases []model.TestCase) (outcome, error) {
	out := outcome{total: len(cases), last: -1}

	compileCmd, compiles, err := prof.Compile(prof.SourcePath())
	if err != nil {
		return out, err
	}
	if compiles {
		_, err := s.sandbox.Exec(ctx, h, sandbox.ExecRequest{
			Command:     compileCmd,
			TimeLimitMs: prof.CompileTimeout.Milliseconds(),
		})
		if err != nil {
			answer, ok := classify(err, model.AnswerCompilationError)
			if !ok {
				return out, err
			}
			logger.Info(ctx, "compile step decided verdict", zap.String("answer", string(answer)))
			out.answer = answer
			out.output = execOutput(err)
			return out, nil
		}
	}

	runCmd, err := prof.Run(prof.SourcePath(), problem.TimeLimitMs, problem.MemoryLimitMB)
	if err != nil {
		return out, err
	}
	for i, tc := range cases {
		out.last = i
		stdout, err := s.sandbox.Exec(ctx, h, sandbox.ExecRequest{
			Command:     runCmd,
			Stdin:       tc.Input,
			TimeLimitMs: problem.TimeLimitMs,
		})
		if err != nil {
			answer, ok := classify(err, model.AnswerRuntimeError)
			if !ok {
				return out, err
			}
			logger.Info(ctx, "test case failed", zap.Int("test_case", i), zap.String("answer", string(answer)))
			out.answer = answer
			out.input = tc.Input
			out.output = execOutput(err)
			return out, nil
		}
		if !outputsMatch(stdout, tc.ExpectedOutput) {
			logger.Info(ctx, "test case failed", zap.Int("test_case", i), zap.String("answer", string(model.AnswerWrongAnswer)))
			out.answer = model.AnswerWrongAnswer
			out.input = tc.Input
			out.output = stdout
			return out, nil
		}
		out.approved++
	}
	out.answer = model.AnswerAccepted
	return out, nil
}

// teardown kills the sandbox. It runs even when ctx is already cancelled and
// never fails the judging run.
func (s *Service) teardown(ctx context.Context, h sandbox.Handle) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.teardownTimeout)
	defer cancel()
	if err := s.sandbox.Kill(killCtx, h); err != nil {
		logger.Warn(ctx, "sandbox teardown failed", zap.String("sandbox", h.Name), zap.Error(err))
	}
}

// classify maps a sandbox error to a verdict. Unclassified non-zero exits
// become fallback; anything else is not a verdict.
func classify(err error, fallback model.Answer) (model.Answer, bool) {
	switch {
	case sandbox.IsTimeout(err):
		return model.AnswerTimeLimitExceeded, true
	case sandbox.IsOOM(err):
		return model.AnswerMemoryLimitExceeded, true
	}
	if _, ok := sandbox.AsExecError(err); ok {
		return fallback, true
	}
	return "", false
}

func execOutput(err error) string {
	if execErr, ok := sandbox.AsExecError(err); ok {
		return execErr.Output
	}
	return appErr.GetCode(err).Message()
}

// outputsMatch compares after trimming trailing whitespace on both sides.
func outputsMatch(actual, expected string) bool {
	return strings.TrimRightFunc(actual, unicode.IsSpace) == strings.TrimRightFunc(expected, unicode.IsSpace)
}
