package catalog

import "testing"

func TestDefault_Embedded(t *testing.T) {
	c := Default()
	if len(c.Analysts) == 0 || len(c.Symbols) == 0 {
		t.Fatalf("embedded catalog is empty: %+v", c)
	}
	a, ok := c.Analyst("technical_analyst")
	if !ok || a.Name != "Technical Analyst" {
		t.Errorf("technical_analyst = %+v, %v", a, ok)
	}
	if !c.HasSymbol("BTC") {
		t.Error("BTC should be a default symbol")
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := Default()
	if got := c.DisplayName("custom_agent"); got != "custom_agent" {
		t.Errorf("DisplayName(unknown) = %q", got)
	}
	unknown := c.Unknown([]string{"technical_analyst", "custom_agent"})
	if len(unknown) != 1 || unknown[0] != "custom_agent" {
		t.Errorf("Unknown = %v", unknown)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte("analysts:\n  - id: a\nsymbols: [X]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Analysts[0].Name != "a" {
		t.Errorf("name should default to id, got %q", c.Analysts[0].Name)
	}

	bad := []string{
		"analysts: [{name: x}]",
		"analysts: [{id: a}, {id: a}]",
		"analysts: {",
	}
	for _, b := range bad {
		if _, err := Parse([]byte(b)); err == nil {
			t.Errorf("expected error for %q", b)
		}
	}
}
