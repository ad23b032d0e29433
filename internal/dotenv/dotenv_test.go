package dotenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
	if err := LoadFile(""); err != nil {
		t.Fatalf("LoadFile empty path error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# carrier\n" +
		"CALYX_TEST_TWILIO_PHONE_NUMBER=+15550100\n" +
		"CALYX_TEST_SAFE_WORD=\"blue berries\"\n" +
		"export CALYX_TEST_PUBLIC_DOMAIN=calyx.example\n" +
		"CALYX_TEST_LLM_PROVIDER=gemini\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CALYX_TEST_LLM_PROVIDER", "groq")
	for _, k := range []string{"CALYX_TEST_TWILIO_PHONE_NUMBER", "CALYX_TEST_SAFE_WORD", "CALYX_TEST_PUBLIC_DOMAIN"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	want := map[string]string{
		"CALYX_TEST_TWILIO_PHONE_NUMBER": "+15550100",
		"CALYX_TEST_SAFE_WORD":           "blue berries",
		"CALYX_TEST_PUBLIC_DOMAIN":       "calyx.example",
		"CALYX_TEST_LLM_PROVIDER":        "groq",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Fatalf("%s=%q, want %q", k, got, v)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	in := strings.Join([]string{
		"",
		"# comment",
		"PLAIN=value # trailing",
		"SINGLE='literal # kept'",
		`DOUBLE="line1\nline2"`,
		"=novalue",
		"NOEQUALS",
		"EMPTY=",
	}, "\n")

	pairs, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Pair{
		{"PLAIN", "value"},
		{"SINGLE", "literal # kept"},
		{"DOUBLE", "line1\nline2"},
		{"EMPTY", ""},
	}
	if len(pairs) != len(want) {
		t.Fatalf("pairs=%v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("pairs[%d]=%v, want %v", i, pairs[i], want[i])
		}
	}
}
