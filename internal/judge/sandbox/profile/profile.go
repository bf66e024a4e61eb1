// Package profile maps the closed set of contest languages to sandbox profiles.
package profile

import (
	"path"
	"strconv"
	"strings"
	"time"

	appErr "contestjudge/pkg/errors"

	"github.com/google/shlex"
)

// Language is the closed set of languages a contest may allow.
type Language string

const (
	CPP17     Language = "CPP_17"
	Java21    Language = "JAVA_21"
	Python312 Language = "PYTHON_312"
)

// AllLanguages lists every supported language in display order.
var AllLanguages = []Language{CPP17, Java21, Python312}

// ParseLanguage validates a language identifier.
func ParseLanguage(raw string) (Language, error) {
	lang := Language(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllLanguages {
		if lang == known {
			return lang, nil
		}
	}
	return "", appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", raw)
}

// Profile describes how one language is compiled and run inside a sandbox.
// Command templates accept {src}, {dir}, {timeLimitMs} and {memoryMB}.
type Profile struct {
	Language       Language      `yaml:"language"`
	Image          string        `yaml:"image"`
	SourceFile     string        `yaml:"sourceFile"`
	WorkDir        string        `yaml:"workDir"`
	CompileCmd     string        `yaml:"compileCmd"`
	RunCmd         string        `yaml:"runCmd"`
	CompileTimeout time.Duration `yaml:"compileTimeout"`
}

// SourcePath is where the submission is copied inside the sandbox.
func (p Profile) SourcePath() string {
	return path.Join(p.WorkDir, p.SourceFile)
}

// Compile returns the compile command. ok is false when the language has no
// compile step.
func (p Profile) Compile(sourceFile string) (cmd []string, ok bool, err error) {
	if strings.TrimSpace(p.CompileCmd) == "" {
		return nil, false, nil
	}
	cmd, err = expand(p.CompileCmd, sourceFile, 0, 0)
	if err != nil {
		return nil, false, err
	}
	return cmd, true, nil
}

// Run returns the run command for the given limits.
func (p Profile) Run(sourceFile string, timeLimitMs, memoryMB int64) ([]string, error) {
	return expand(p.RunCmd, sourceFile, timeLimitMs, memoryMB)
}

func expand(tpl, sourceFile string, timeLimitMs, memoryMB int64) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.NewReplacer(
		"{src}", sourceFile,
		"{dir}", path.Dir(sourceFile),
		"{timeLimitMs}", strconv.FormatInt(timeLimitMs, 10),
		"{memoryMB}", strconv.FormatInt(memoryMB, 10),
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}
