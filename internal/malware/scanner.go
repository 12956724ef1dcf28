// Package malware is a lightweight signature and executable-header check for
// uploaded files. It is a pluggable boundary: production deployments are
// expected to put a real engine behind Scanner.
package malware

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/model"
)

// EngineName identifies results produced by SignatureScanner.
const EngineName = "podguard-signature"

// Scanner inspects a file payload for malicious content.
type Scanner interface {
	Scan(ctx context.Context, data []byte, fileName string) (model.MalwareScanResult, error)
}

// Signature is a byte sequence whose presence marks a payload as malicious.
type Signature struct {
	Name    string
	Type    string
	Pattern []byte
}

// eicar is the standard antivirus test string.
const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// DefaultSignatures returns the built-in signature table.
func DefaultSignatures() []Signature {
	return []Signature{
		{Name: "EICAR-Test-File", Type: "test", Pattern: []byte(eicar)},
		{Name: "PHP.WebShell.Eval", Type: "webshell", Pattern: []byte("<?php eval(base64_decode(")},
		{Name: "PHP.WebShell.System", Type: "webshell", Pattern: []byte("<?php system($_GET[")},
		{Name: "PowerShell.EncodedCommand", Type: "script", Pattern: []byte("powershell -enc ")},
		{Name: "PowerShell.DownloadCradle", Type: "script", Pattern: []byte("IEX (New-Object Net.WebClient).DownloadString(")},
		{Name: "Base64.PE", Type: "dropper", Pattern: []byte("TVqQAAMAAAAEAAAA")},
	}
}

// header is an executable magic prefix.
type header struct {
	name  string
	magic []byte
}

var executableHeaders = []header{
	{name: "PE", magic: []byte("MZ")},
	{name: "ELF", magic: []byte("\x7fELF")},
	{name: "Mach-O", magic: []byte{0xfe, 0xed, 0xfa, 0xce}},
	{name: "Mach-O", magic: []byte{0xfe, 0xed, 0xfa, 0xcf}},
	{name: "Mach-O", magic: []byte{0xce, 0xfa, 0xed, 0xfe}},
	{name: "Mach-O", magic: []byte{0xcf, 0xfa, 0xed, 0xfe}},
	{name: "Mach-O", magic: []byte{0xca, 0xfe, 0xba, 0xbe}},
}

// executableExtensions are file types where an executable header is expected.
var executableExtensions = map[string]bool{
	"exe": true, "dll": true, "sys": true, "scr": true, "com": true, "msi": true,
	"elf": true, "so": true, "bin": true, "out": true, "o": true,
	"dylib": true, "app": true, "macho": true,
}

// SignatureScanner checks signatures first, then executable headers on files
// whose extension should not carry one. The signature table is swapped
// atomically on Reload.
type SignatureScanner struct {
	signatures atomic.Pointer[[]Signature]
	clock      clock.Clock
}

// NewSignatureScanner creates a scanner with the default table plus extra.
func NewSignatureScanner(clk clock.Clock, extra ...Signature) *SignatureScanner {
	if clk == nil {
		clk = clock.Real()
	}
	s := &SignatureScanner{clock: clk}
	s.Reload(extra)
	return s
}

// Reload replaces operator-defined signatures.
func (s *SignatureScanner) Reload(extra []Signature) {
	all := DefaultSignatures()
	all = append(all, extra...)
	s.signatures.Store(&all)
}

// Signatures returns the active table.
func (s *SignatureScanner) Signatures() []Signature {
	return *s.signatures.Load()
}

// Scan checks data for known signatures, then for an executable header.
func (s *SignatureScanner) Scan(ctx context.Context, data []byte, fileName string) (model.MalwareScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues("malware").Observe(time.Since(start).Seconds())
	}()

	result := model.MalwareScanResult{Clean: true, Engine: EngineName, ScannedAt: s.clock.Now()}

	for _, sig := range s.Signatures() {
		if err := ctx.Err(); err != nil {
			metrics.Scans.WithLabelValues("malware", "error").Inc()
			return model.MalwareScanResult{}, fmt.Errorf("malware scan aborted: %w", err)
		}
		if len(sig.Pattern) > 0 && bytes.Contains(data, sig.Pattern) {
			result.Clean = false
			result.ThreatName = sig.Name
			result.ThreatType = sig.Type
			metrics.Scans.WithLabelValues("malware", "hit").Inc()
			return result, nil
		}
	}

	if !executableExtensions[Extension(fileName)] {
		for _, h := range executableHeaders {
			if bytes.HasPrefix(data, h.magic) {
				result.Clean = false
				result.ThreatName = "Disguised." + h.name + ".Executable"
				result.ThreatType = "executable"
				metrics.Scans.WithLabelValues("malware", "hit").Inc()
				return result, nil
			}
		}
	}

	metrics.Scans.WithLabelValues("malware", "clean").Inc()
	return result, nil
}

// Extension returns the lowercased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
