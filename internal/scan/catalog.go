package scan

import (
	"regexp"
	"strings"

	"github.com/ppiankov/podguard/internal/model"
)

// Pattern categories.
const (
	CategoryFinancial   = "financial"
	CategoryPII         = "pii"
	CategoryCredentials = "credentials"
	CategoryHealth      = "health"
	CategoryNetwork     = "network"
)

// Pattern is one entry in the sensitive-data catalog. Patterns hold only
// compiled regular expressions, so a single Pattern is safe to use from many
// goroutines at once.
type Pattern struct {
	Name     string
	Category string
	Severity model.Severity
	Regex    *regexp.Regexp

	// Validate, if set, filters raw regex matches (checksums, reserved ranges).
	Validate func(match string) bool

	// Context, if set, suppresses the pattern unless one of the keywords
	// appears somewhere in the content (case-insensitive).
	Context []string
}

// contextKeywords gate the generic API key pattern, which otherwise matches
// any long alphanumeric run (hashes, ids).
var contextKeywords = []string{"api_key", "apikey", "api-key", "secret", "token", "password"}

// DefaultCatalog returns the built-in patterns in evaluation order.
func DefaultCatalog() []Pattern {
	return []Pattern{
		{
			Name:     "credit_card",
			Category: CategoryFinancial,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`\b(?:4\d{3}|5[1-5]\d{2}|2[2-7]\d{2}|6011|65\d{2})(?:[- ]?\d{4}){3}\b|\b3[47]\d{2}[- ]?\d{6}[- ]?\d{5}\b`),
			Validate: luhnValid,
		},
		{
			Name:     "us_ssn",
			Category: CategoryPII,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Validate: ssnValid,
		},
		{
			Name:     "iban",
			Category: CategoryFinancial,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){3,7}(?: ?[A-Z0-9]{1,3})?\b`),
		},
		{
			Name:     "phone_number",
			Category: CategoryPII,
			Severity: model.SeverityMedium,
			Regex:    regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b[2-9]\d{2}\)?[-. ]?\d{3}[-. ]\d{4}\b`),
		},
		{
			Name:     "email_address",
			Category: CategoryPII,
			Severity: model.SeverityLow,
			Regex:    regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
		},
		{
			Name:     "passport_number",
			Category: CategoryPII,
			Severity: model.SeverityMedium,
			Regex:    regexp.MustCompile(`(?i)\bpassport(?:\s+(?:no|number|#))?[.:#\s]*[A-Z0-9]{6,9}\b`),
		},
		{
			Name:     "date_of_birth",
			Category: CategoryPII,
			Severity: model.SeverityMedium,
			Regex:    regexp.MustCompile(`(?i)\b(?:dob|date of birth|birth date)[:\s]*\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}\b`),
		},
		{
			Name:     "aws_access_key",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
		},
		{
			Name:     "aws_secret_key",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`(?i)aws_?(?:secret_?access_?key|secret)\s*[=:]\s*["']?[A-Za-z0-9/+]{40}["']?`),
		},
		{
			Name:     "gcp_api_key",
			Category: CategoryCredentials,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`),
		},
		{
			Name:     "azure_storage_key",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`AccountKey=[A-Za-z0-9+/]{86}==`),
		},
		{
			Name:     "github_token",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,255}\b`),
		},
		{
			Name:     "slack_token",
			Category: CategoryCredentials,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}\b`),
		},
		{
			Name:     "stripe_secret_key",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`\b[sr]k_live_[0-9a-zA-Z]{24,}\b`),
		},
		{
			Name:     "private_key",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`),
		},
		{
			Name:     "jwt",
			Category: CategoryCredentials,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
		},
		{
			Name:     "database_connection_string",
			Category: CategoryCredentials,
			Severity: model.SeverityCritical,
			Regex:    regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|redis|rediss|mssql|sqlserver|amqp)://[^\s:/@]+:[^\s@/]+@[^\s'"]+`),
		},
		{
			Name:     "generic_api_key",
			Category: CategoryCredentials,
			Severity: model.SeverityMedium,
			Regex:    regexp.MustCompile(`\b[A-Za-z0-9]{32,64}\b`),
			Validate: mixedAlnum,
			Context:  contextKeywords,
		},
		{
			Name:     "internal_ip_address",
			Category: CategoryNetwork,
			Severity: model.SeverityLow,
			Regex:    regexp.MustCompile(`\b(?:10\.\d{1,3}\.\d{1,3}\.\d{1,3}|172\.(?:1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3})\b`),
		},
		{
			Name:     "medical_record_number",
			Category: CategoryHealth,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`(?i)\b(?:MRN|medical record(?: number| no\.?)?)[\s#:]*\d{6,10}\b`),
		},
		{
			Name:     "medicare_beneficiary_id",
			Category: CategoryHealth,
			Severity: model.SeverityHigh,
			Regex:    regexp.MustCompile(`\b[1-9][AC-HJKMNP-RT-Y][AC-HJKMNP-RT-Y0-9]\d-?[AC-HJKMNP-RT-Y][AC-HJKMNP-RT-Y0-9]\d-?[AC-HJKMNP-RT-Y]{2}\d{2}\b`),
		},
	}
}

// luhnValid checks the card checksum over the digits of s.
func luhnValid(s string) bool {
	sum := 0
	n := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && sum%10 == 0
}

// ssnValid rejects area, group and serial numbers that are never issued.
func ssnValid(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return false
	}
	area, group, serial := parts[0], parts[1], parts[2]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// mixedAlnum requires both letters and digits, which drops plain words and
// long numbers from the generic key pattern.
func mixedAlnum(s string) bool {
	var letter, digit bool
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			letter = true
		}
	}
	return letter && digit
}
