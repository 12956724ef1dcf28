package model

import (
	"fmt"
	"strings"
)

// ClipboardPolicy governs clipboard sync between the pod and the local device.
type ClipboardPolicy string

const (
	ClipboardBidirectional    ClipboardPolicy = "BIDIRECTIONAL"
	ClipboardReadOnly         ClipboardPolicy = "READ_ONLY"
	ClipboardWriteOnly        ClipboardPolicy = "WRITE_ONLY"
	ClipboardBlocked          ClipboardPolicy = "BLOCKED"
	ClipboardApprovalRequired ClipboardPolicy = "APPROVAL_REQUIRED"
)

// Valid reports whether p is a known clipboard mode.
func (p ClipboardPolicy) Valid() bool {
	switch p {
	case ClipboardBidirectional, ClipboardReadOnly, ClipboardWriteOnly,
		ClipboardBlocked, ClipboardApprovalRequired:
		return true
	}
	return false
}

// FileTransferPolicy governs one direction of file transfer.
type FileTransferPolicy string

const (
	FileTransferAllowed          FileTransferPolicy = "ALLOWED"
	FileTransferBlocked          FileTransferPolicy = "BLOCKED"
	FileTransferApprovalRequired FileTransferPolicy = "APPROVAL_REQUIRED"
	FileTransferLoggedOnly       FileTransferPolicy = "LOGGED_ONLY"
)

// Valid reports whether p is a known file transfer mode.
func (p FileTransferPolicy) Valid() bool {
	switch p {
	case FileTransferAllowed, FileTransferBlocked,
		FileTransferApprovalRequired, FileTransferLoggedOnly:
		return true
	}
	return false
}

// PrintingPolicy governs print jobs leaving the pod.
type PrintingPolicy string

const (
	PrintingAllowed          PrintingPolicy = "ALLOWED"
	PrintingBlocked          PrintingPolicy = "BLOCKED"
	PrintingLocalOnly        PrintingPolicy = "LOCAL_ONLY"
	PrintingPDFOnly          PrintingPolicy = "PDF_ONLY"
	PrintingApprovalRequired PrintingPolicy = "APPROVAL_REQUIRED"
)

// Valid reports whether p is a known printing mode.
func (p PrintingPolicy) Valid() bool {
	switch p {
	case PrintingAllowed, PrintingBlocked, PrintingLocalOnly,
		PrintingPDFOnly, PrintingApprovalRequired:
		return true
	}
	return false
}

// USBPolicy governs USB redirection into the pod.
type USBPolicy string

const (
	USBAllowed        USBPolicy = "ALLOWED"
	USBBlocked        USBPolicy = "BLOCKED"
	USBStorageBlocked USBPolicy = "STORAGE_BLOCKED"
	USBWhitelistOnly  USBPolicy = "WHITELIST_ONLY"
)

// Valid reports whether p is a known USB mode.
func (p USBPolicy) Valid() bool {
	switch p {
	case USBAllowed, USBBlocked, USBStorageBlocked, USBWhitelistOnly:
		return true
	}
	return false
}

// DevicePolicy governs webcam and microphone redirection.
type DevicePolicy string

const (
	DeviceAllowed       DevicePolicy = "ALLOWED"
	DeviceBlocked       DevicePolicy = "BLOCKED"
	DeviceSessionPrompt DevicePolicy = "SESSION_PROMPT"
)

// Valid reports whether p is a known device mode.
func (p DevicePolicy) Valid() bool {
	switch p {
	case DeviceAllowed, DeviceBlocked, DeviceSessionPrompt:
		return true
	}
	return false
}

// NetworkPolicy governs outbound network access from the pod.
type NetworkPolicy string

const (
	NetworkUnrestricted NetworkPolicy = "UNRESTRICTED"
	NetworkMonitored    NetworkPolicy = "MONITORED"
	NetworkRestricted   NetworkPolicy = "RESTRICTED"
	NetworkBlocked      NetworkPolicy = "BLOCKED"
)

// Valid reports whether p is a known network mode.
func (p NetworkPolicy) Valid() bool {
	switch p {
	case NetworkUnrestricted, NetworkMonitored, NetworkRestricted, NetworkBlocked:
		return true
	}
	return false
}

// WatermarkSettings controls the visible watermark overlaid on the pod display.
type WatermarkSettings struct {
	Enabled          bool    `yaml:"enabled" json:"enabled"`
	Text             string  `yaml:"text,omitempty" json:"text,omitempty"`
	Opacity          float64 `yaml:"opacity,omitempty" json:"opacity,omitempty"`
	Position         string  `yaml:"position,omitempty" json:"position,omitempty"`
	FontSize         int     `yaml:"font_size,omitempty" json:"font_size,omitempty"`
	Color            string  `yaml:"color,omitempty" json:"color,omitempty"`
	IncludeUserID    bool    `yaml:"include_user_id" json:"include_user_id"`
	IncludeSessionID bool    `yaml:"include_session_id" json:"include_session_id"`
	IncludeTimestamp bool    `yaml:"include_timestamp" json:"include_timestamp"`
	IncludeSourceIP  bool    `yaml:"include_source_ip" json:"include_source_ip"`
}

// PodSecurityPolicy is the tenant-scoped containment configuration for a pod.
// A policy is treated as immutable while a request is being evaluated.
type PodSecurityPolicy struct {
	ID       string `yaml:"id" json:"id"`
	TenantID string `yaml:"tenant_id" json:"tenant_id"`
	Name     string `yaml:"name" json:"name"`

	ClipboardPolicy       ClipboardPolicy `yaml:"clipboard_policy" json:"clipboard_policy"`
	ClipboardInbound      bool            `yaml:"clipboard_inbound" json:"clipboard_inbound"`
	ClipboardOutbound     bool            `yaml:"clipboard_outbound" json:"clipboard_outbound"`
	ClipboardMaxSize      int64           `yaml:"clipboard_max_size,omitempty" json:"clipboard_max_size,omitempty"`
	ClipboardAllowedTypes []string        `yaml:"clipboard_allowed_types,omitempty" json:"clipboard_allowed_types,omitempty"`

	FileDownloadPolicy FileTransferPolicy `yaml:"file_download_policy" json:"file_download_policy"`
	FileUploadPolicy   FileTransferPolicy `yaml:"file_upload_policy" json:"file_upload_policy"`
	AllowedFileTypes   []string           `yaml:"allowed_file_types,omitempty" json:"allowed_file_types,omitempty"`
	BlockedFileTypes   []string           `yaml:"blocked_file_types,omitempty" json:"blocked_file_types,omitempty"`
	MaxFileSize        int64              `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`

	PrintingPolicy    PrintingPolicy `yaml:"printing_policy" json:"printing_policy"`
	USBPolicy         USBPolicy      `yaml:"usb_policy" json:"usb_policy"`
	AllowedUSBDevices []string       `yaml:"allowed_usb_devices,omitempty" json:"allowed_usb_devices,omitempty"`
	WebcamPolicy      DevicePolicy   `yaml:"webcam_policy" json:"webcam_policy"`
	MicrophonePolicy  DevicePolicy   `yaml:"microphone_policy" json:"microphone_policy"`

	NetworkPolicy  NetworkPolicy `yaml:"network_policy" json:"network_policy"`
	AllowedDomains []string      `yaml:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	BlockedDomains []string      `yaml:"blocked_domains,omitempty" json:"blocked_domains,omitempty"`
	AllowInternet  bool          `yaml:"allow_internet" json:"allow_internet"`

	Watermark             WatermarkSettings `yaml:"watermark" json:"watermark"`
	ScreenCaptureBlocking bool              `yaml:"screen_capture_blocking" json:"screen_capture_blocking"`

	IdleTimeoutMinutes        int `yaml:"idle_timeout_minutes,omitempty" json:"idle_timeout_minutes,omitempty"`
	MaxSessionDurationMinutes int `yaml:"max_session_duration_minutes,omitempty" json:"max_session_duration_minutes,omitempty"`

	// ConstraintViolationsLogOnly keeps size and type denials out of the
	// violation count. They are still written to the audit log.
	ConstraintViolationsLogOnly bool `yaml:"constraint_violations_log_only" json:"constraint_violations_log_only"`
}

// DefaultPolicy returns a restrictive baseline: clipboard read-only, transfers
// logged, USB storage and screen capture blocked, monitored network.
func DefaultPolicy() *PodSecurityPolicy {
	return &PodSecurityPolicy{
		ID:                 "default",
		Name:               "Default containment",
		ClipboardPolicy:    ClipboardReadOnly,
		ClipboardInbound:   true,
		ClipboardOutbound:  true,
		ClipboardMaxSize:   1 << 20,
		FileDownloadPolicy: FileTransferLoggedOnly,
		FileUploadPolicy:   FileTransferLoggedOnly,
		BlockedFileTypes:   []string{"exe", "dll", "bat", "cmd", "ps1", "vbs", "scr", "msi"},
		MaxFileSize:        100 << 20,
		PrintingPolicy:     PrintingPDFOnly,
		USBPolicy:          USBStorageBlocked,
		WebcamPolicy:       DeviceSessionPrompt,
		MicrophonePolicy:   DeviceSessionPrompt,
		NetworkPolicy:      NetworkMonitored,
		AllowInternet:      true,
		Watermark: WatermarkSettings{
			Enabled:          true,
			Opacity:          0.15,
			Position:         "tiled",
			FontSize:         14,
			Color:            "#808080",
			IncludeUserID:    true,
			IncludeSessionID: true,
			IncludeTimestamp: true,
		},
		ScreenCaptureBlocking:     true,
		IdleTimeoutMinutes:        30,
		MaxSessionDurationMinutes: 720,
	}
}

// Validate checks that every channel mode is recognised. Unknown modes are a
// configuration error rather than a silent fallthrough at evaluation time.
func (p *PodSecurityPolicy) Validate() error {
	var bad []string
	if !p.ClipboardPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("clipboard_policy=%q", p.ClipboardPolicy))
	}
	if !p.FileDownloadPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("file_download_policy=%q", p.FileDownloadPolicy))
	}
	if !p.FileUploadPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("file_upload_policy=%q", p.FileUploadPolicy))
	}
	if !p.PrintingPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("printing_policy=%q", p.PrintingPolicy))
	}
	if !p.USBPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("usb_policy=%q", p.USBPolicy))
	}
	if !p.WebcamPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("webcam_policy=%q", p.WebcamPolicy))
	}
	if !p.MicrophonePolicy.Valid() {
		bad = append(bad, fmt.Sprintf("microphone_policy=%q", p.MicrophonePolicy))
	}
	if !p.NetworkPolicy.Valid() {
		bad = append(bad, fmt.Sprintf("network_policy=%q", p.NetworkPolicy))
	}
	if p.ClipboardMaxSize < 0 || p.MaxFileSize < 0 {
		bad = append(bad, "size limits must not be negative")
	}
	if len(bad) > 0 {
		return fmt.Errorf("policy %q: invalid %s", p.ID, strings.Join(bad, ", "))
	}
	return nil
}
