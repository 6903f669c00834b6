package process

import "testing"

func TestSplitCommandLine(t *testing.T) {
	const exe = `C:\Program Files\Java\bin\java.exe`

	cases := []struct {
		name        string
		commandLine string
		want        string
	}{
		{"quoted executable", `"` + exe + `" -jar "D:\srv\server.jar" nogui`, `-jar "D:\srv\server.jar" nogui`},
		{"unquoted executable", exe + ` -jar server.jar`, `-jar server.jar`},
		{"no arguments", `"` + exe + `"`, ``},
		{"extra spacing", `"` + exe + `"    --port 5520   `, `--port 5520`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitCommandLine(tc.commandLine, exe)
			if err != nil {
				t.Fatalf("SplitCommandLine: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplitCommandLineExecutableMissing(t *testing.T) {
	if _, err := SplitCommandLine(`java -jar server.jar`, `C:\java\bin\java.exe`); err == nil {
		t.Fatal("expected error when the executable is not in the command line")
	}
}

// The split is a heuristic. These cases document where it gives up or
// returns a wrong answer; a change in behaviour here is not necessarily a fix.
func TestSplitCommandLineKnownLimitations(t *testing.T) {
	const exe = `C:\srv\server.exe`

	t.Run("partially quoted path", func(t *testing.T) {
		// Quotes inside the path mean the executable is never found.
		got, err := SplitCommandLine(`C:\"srv"\server.exe -x`, exe)
		if err == nil {
			t.Fatalf("expected no match for a path spelled differently, got %q", got)
		}
	})

	t.Run("unbalanced opening quote", func(t *testing.T) {
		_, err := SplitCommandLine(`"`+exe+` -x`, exe)
		if err == nil {
			t.Fatal("expected an error when the mirrored quote is absent")
		}
	})

	t.Run("executable repeated in arguments", func(t *testing.T) {
		// Only the first occurrence is considered.
		got, err := SplitCommandLine(exe+` --self `+exe, exe)
		if err != nil {
			t.Fatal(err)
		}
		if got != `--self `+exe {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("nested quotes", func(t *testing.T) {
		// The prefix `"'` mirrors to `'"`, which is searched anywhere after
		// the executable, so the split lands inside the arguments.
		got, err := SplitCommandLine(`"'`+exe+`' -a '"b'"`, exe)
		if err != nil {
			t.Fatal(err)
		}
		if got != `b'"` {
			t.Fatalf("got %q", got)
		}
	})
}
