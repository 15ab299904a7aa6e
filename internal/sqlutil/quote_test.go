package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"answers", "`answers`"},
		{"answers_tags", "`answers_tags`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"user`data", "`user``data`"},  // backtick in name
		{"a`b`c", "`a``b``c`"},         // multiple backticks
		{"", "``"},                     // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDialectQuoteIdentifier(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		input    string
		expected string
	}{
		{DialectMySQL, "answers", "`answers`"},
		{DialectPostgres, "answers", `"answers"`},
		{DialectPostgres, `we"ird`, `"we""ird"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect)+"/"+tt.input, func(t *testing.T) {
			result := tt.dialect.QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("%s.QuoteIdentifier(%q) = %q, want %q", tt.dialect, tt.input, result, tt.expected)
			}
		})
	}
}

func TestDialectForDriver(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"mysql", DialectMySQL, false},
		{"", DialectMySQL, false},
		{"pgx", DialectPostgres, false},
		{"Postgres", DialectPostgres, false},
		{"sqlite3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := DialectForDriver(tt.driver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DialectForDriver(%q) expected error", tt.driver)
				}
				return
			}
			if err != nil {
				t.Fatalf("DialectForDriver(%q) unexpected error: %v", tt.driver, err)
			}
			if got != tt.want {
				t.Errorf("DialectForDriver(%q) = %q, want %q", tt.driver, got, tt.want)
			}
		})
	}
}
