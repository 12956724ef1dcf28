package malware

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/podguard/internal/clock"
)

func testClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestScanEICAR(t *testing.T) {
	clk := testClock()
	s := NewSignatureScanner(clk)

	res, err := s.Scan(context.Background(), []byte("prefix "+eicar+" suffix"), "readme.txt")
	require.NoError(t, err)
	assert.False(t, res.Clean)
	assert.Equal(t, "EICAR-Test-File", res.ThreatName)
	assert.Equal(t, "test", res.ThreatType)
	assert.Equal(t, EngineName, res.Engine)
	assert.Equal(t, clk.Now(), res.ScannedAt)
}

func TestScanClean(t *testing.T) {
	s := NewSignatureScanner(testClock())
	res, err := s.Scan(context.Background(), []byte("just some notes"), "notes.txt")
	require.NoError(t, err)
	assert.True(t, res.Clean)
	assert.Empty(t, res.ThreatName)
}

func TestScanExecutableHeaders(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		fileName  string
		wantClean bool
	}{
		{"pe disguised as pdf", []byte("MZ\x90\x00\x03"), "invoice.pdf", false},
		{"elf disguised as png", []byte("\x7fELF\x02\x01"), "cat.png", false},
		{"mach-o disguised as doc", []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07}, "report.docx", false},
		{"pe with exe extension", []byte("MZ\x90\x00\x03"), "setup.EXE", true},
		{"elf with so extension", []byte("\x7fELF\x02\x01"), "libfoo.so", true},
		{"no extension", []byte("\x7fELF"), "payload", false},
		{"text starting with M", []byte("Meeting notes"), "notes.txt", true},
	}

	s := NewSignatureScanner(testClock())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Scan(context.Background(), tt.data, tt.fileName)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClean, res.Clean, res.ThreatName)
			if !tt.wantClean {
				assert.Equal(t, "executable", res.ThreatType)
			}
		})
	}
}

func TestSignatureWinsOverHeader(t *testing.T) {
	s := NewSignatureScanner(testClock())
	res, err := s.Scan(context.Background(), []byte("MZ TVqQAAMAAAAEAAAA"), "x.txt")
	require.NoError(t, err)
	assert.Equal(t, "Base64.PE", res.ThreatName)
}

func TestScanCancelled(t *testing.T) {
	s := NewSignatureScanner(testClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, []byte("data"), "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtraSignatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`signatures:
  - name: Internal.Canary
    type: canary
    text: "CANARY-7f3a"
  - name: Hex.Marker
    hex: "de ad be ef"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	extra, err := CompileSignatures(cfg)
	require.NoError(t, err)
	require.Len(t, extra, 2)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, extra[1].Pattern)
	assert.Equal(t, "custom", extra[1].Type)

	s := NewSignatureScanner(testClock())
	s.Reload(extra)
	assert.Len(t, s.Signatures(), len(DefaultSignatures())+2)

	res, err := s.Scan(context.Background(), []byte{0x00, 0xde, 0xad, 0xbe, 0xef}, "blob.dat")
	require.NoError(t, err)
	assert.False(t, res.Clean)
	assert.Equal(t, "Hex.Marker", res.ThreatName)
}

func TestCompileSignaturesErrors(t *testing.T) {
	_, err := CompileSignatures(&SignatureConfig{Signatures: []SignatureDef{{Text: "x"}}})
	assert.ErrorContains(t, err, "name is required")

	_, err = CompileSignatures(&SignatureConfig{Signatures: []SignatureDef{{Name: "x"}}})
	assert.ErrorContains(t, err, "exactly one")

	_, err = CompileSignatures(&SignatureConfig{Signatures: []SignatureDef{{Name: "x", Hex: "zz"}}})
	assert.ErrorContains(t, err, "invalid hex")
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", Extension("Report.PDF"))
	assert.Equal(t, "gz", Extension("a.tar.gz"))
	assert.Equal(t, "", Extension("Makefile"))
}
