package entity

import "time"

// Source is a news feed the ingester pulls from.
// Every article from the source inherits its bias category.
// Sources are declared in YAML and mirrored into the sources table.
type Source struct {
	ID            int64      `yaml:"-"`
	Name          string     `yaml:"name"`
	FeedURL       string     `yaml:"feed_url"`
	Bias          *int       `yaml:"bias"`
	Active        bool       `yaml:"-"`
	LastCrawledAt *time.Time `yaml:"-"`
}

// Validate checks the source definition.
func (s *Source) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "source name is required"}
	}
	if err := ValidateURL(s.FeedURL); err != nil {
		return err
	}
	if s.Bias != nil {
		return ValidateBias(*s.Bias)
	}
	return nil
}
