// Package testcase reads and writes the CSV attachment holding a problem's
// test cases. Each record is exactly "input,expectedOutput".
package testcase

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"

	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
)

const fieldsPerRecord = 2

// Parse decodes a test-case attachment. Blank lines, records with a field
// count other than two and empty attachments are rejected.
func Parse(data []byte) ([]model.TestCase, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = fieldsPerRecord
	r.ReuseRecord = true

	var cases []model.TestCase
	for {
		// encoding/csv skips empty lines silently; detect them first.
		if off := r.InputOffset(); off < int64(len(data)) && isLineBreak(data[off]) {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "blank line after test case %d", len(cases))
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "malformed test case %d", len(cases)+1)
		}
		cases = append(cases, model.TestCase{Input: record[0], ExpectedOutput: record[1]})
	}
	if len(cases) == 0 {
		return nil, appErr.New(appErr.TestCaseInvalid).WithMessage("test case file is empty")
	}
	return cases, nil
}

// Serialize encodes test cases in the format Parse accepts.
func Serialize(cases []model.TestCase) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, tc := range cases {
		if err := w.Write([]string{tc.Input, tc.ExpectedOutput}); err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "encode test case")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "encode test cases")
	}
	return buf.Bytes(), nil
}

func isLineBreak(b byte) bool {
	return b == '\n' || b == '\r'
}
