package main

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// E2ETestSpec represents a single end-to-end milc test case
type E2ETestSpec struct {
	Name         string   `yaml:"name"`
	Input        string   `yaml:"input"`
	Flags        []string `yaml:"flags"`
	Fail         bool     `yaml:"fail"`
	Expect       []string `yaml:"expect"`        // Strings that must appear in stdout
	ExpectOrder  []string `yaml:"expect_order"`  // Strings that must appear in this order
	ExpectNot    []string `yaml:"expect_not"`    // Strings that must NOT appear in stdout
	ExpectStderr []string `yaml:"expect_stderr"` // Strings that must appear in stderr
	Skip         string   `yaml:"skip,omitempty"`
}

// E2ETestFile represents the e2e_mil.yaml file structure. Programs holds
// shared inputs referenced by YAML anchors.
type E2ETestFile struct {
	Programs map[string]string `yaml:"programs"`
	Tests    []E2ETestSpec     `yaml:"tests"`
}

// TestE2EMILYAML runs milc on each case of testdata/e2e_mil.yaml
func TestE2EMILYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e_mil.yaml")
	if err != nil {
		t.Fatalf("failed to read e2e_mil.yaml: %v", err)
	}

	var testFile E2ETestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e_mil.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("no test cases in e2e_mil.yaml")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			input := writeInput(t, "test.yaml", tc.Input)
			output, errOutput, err := runMilc(t, append(tc.Flags, input)...)
			if tc.Fail {
				if err == nil {
					t.Fatalf("expected milc to fail\nStdout:\n%s", output)
				}
			} else if err != nil {
				t.Fatalf("milc failed: %v\nStderr: %s", err, errOutput)
			}

			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}

			if len(tc.ExpectOrder) > 0 {
				lastIdx := -1
				for _, exp := range tc.ExpectOrder {
					idx := strings.Index(output, exp)
					if idx == -1 {
						t.Errorf("expected output to contain %q for order check\nGot:\n%s", exp, output)
					} else if idx <= lastIdx {
						t.Errorf("expected %q to appear after previous pattern (position %d vs %d)\nGot:\n%s", exp, idx, lastIdx, output)
					}
					lastIdx = idx
				}
			}

			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}

			for _, exp := range tc.ExpectStderr {
				if !strings.Contains(errOutput, exp) {
					t.Errorf("expected stderr to contain %q\nGot:\n%s", exp, errOutput)
				}
			}
		})
	}
}

// TestE2EDumpsAgree checks that every MIL dump of a well-typed program
// still runs to the same result.
func TestE2EDumpsAgree(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e_mil.yaml")
	if err != nil {
		t.Fatalf("failed to read e2e_mil.yaml: %v", err)
	}
	var testFile E2ETestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e_mil.yaml: %v", err)
	}
	sum, ok := testFile.Programs["sum"]
	if !ok {
		t.Fatal("no sum program")
	}

	for _, flag := range []string{"-dmil", "-dspec", "-drep", "-dopt"} {
		t.Run(flag, func(t *testing.T) {
			input := writeInput(t, "sum.yaml", sum)
			output, errOutput, err := runMilc(t, flag, "--run", "--arg", "10", input)
			if err != nil {
				t.Fatalf("milc failed: %v\nStderr: %s", err, errOutput)
			}
			if !strings.HasSuffix(output, "[55]\n") {
				t.Errorf("expected result [55]\nGot:\n%s", output)
			}
		})
	}
}
