package entity

import (
	"fmt"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs.
const maxURLLength = 2048

// Bias categories are small non-negative integers (e.g. left, center, right).
const (
	MinBias = 0
	MaxBias = 10
)

// ValidateURL checks that rawURL is a well-formed absolute http(s) URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return nil
}

// ValidateBias checks that a bias category is in range.
func ValidateBias(bias int) error {
	if bias < MinBias || bias > MaxBias {
		return &ValidationError{
			Field:   "bias",
			Message: fmt.Sprintf("bias must be between %d and %d", MinBias, MaxBias),
		}
	}
	return nil
}
