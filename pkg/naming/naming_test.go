package naming

import "testing"

func TestHash_Deterministic(t *testing.T) {
	a := Hash("weather", "http://weather:9000")
	b := Hash("weather", "http://weather:9000")
	if a != b {
		t.Errorf("Hash not deterministic: %q != %q", a, b)
	}
	if len(a) != TokenLength {
		t.Errorf("len(Hash) = %d, want %d", len(a), TokenLength)
	}
}

func TestHash_DiffersByInput(t *testing.T) {
	a := Hash("weather", "http://weather:9000")
	b := Hash("weather", "http://weather:9001")
	c := Hash("other", "http://weather:9000")
	if a == b || a == c || b == c {
		t.Errorf("expected distinct hashes, got %q %q %q", a, b, c)
	}
}

func TestSnake_Idempotent(t *testing.T) {
	cases := []string{"GetCurrentWeather", "get_current_weather", "Get-Current Weather!", "ALLCAPS"}
	for _, c := range cases {
		once := Snake(c)
		twice := Snake(once)
		if once != twice {
			t.Errorf("Snake(%q) = %q, Snake(Snake(%q)) = %q, want equal", c, once, c, twice)
		}
	}
}

func TestSnake_Cases(t *testing.T) {
	tests := map[string]string{
		"GetCurrentWeather": "get_current_weather",
		"fetch-server-tools": "fetch_server_tools",
		"Already_Snake":       "already_snake",
		"multi   space":       "multi_space",
	}
	for in, want := range tests {
		if got := Snake(in); got != want {
			t.Errorf("Snake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolName_RoundTrip(t *testing.T) {
	token := Hash("weather", "http://weather:9000")
	name := ToolName(token, "GetCurrent")

	parsed, err := Parse(name)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", name, err)
	}
	if parsed.Kind != KindExternal {
		t.Fatalf("Kind = %v, want KindExternal", parsed.Kind)
	}
	if parsed.Token != token {
		t.Errorf("Token = %q, want %q", parsed.Token, token)
	}
	if parsed.Function != "get_current" {
		t.Errorf("Function = %q, want %q", parsed.Function, "get_current")
	}
}

func TestInternalToolName(t *testing.T) {
	name := InternalToolName("available_servers")
	parsed, err := Parse(name)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", name, err)
	}
	if parsed.Kind != KindInternal {
		t.Fatalf("Kind = %v, want KindInternal", parsed.Kind)
	}
	if parsed.Name != "available_servers" {
		t.Errorf("Name = %q, want %q", parsed.Name, "available_servers")
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{"", "noUnderscore", "short_function", "123456", "_leadingunderscore"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", c)
		}
	}
}

func TestParse_TokenLengthEnforced(t *testing.T) {
	if _, err := Parse("abcdefg_function"); err == nil {
		t.Error("expected error for 7-character token")
	}
	if _, err := Parse("abcde_function"); err == nil {
		t.Error("expected error for 5-character token")
	}
}
