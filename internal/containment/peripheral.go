package containment

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/podguard/internal/model"
)

// massStorageClasses are device class spellings treated as USB mass storage.
var massStorageClasses = []string{"mass_storage", "mass-storage", "storage", "msc", "08", "0x08"}

// CheckPeripheralAccess decides whether a local device may be redirected
// into the pod. Printers are evaluated by the print rules.
func (e *Engine) CheckPeripheralAccess(ctx context.Context, req model.PeripheralRequest) (model.AccessDecision, error) {
	if req.Kind == model.PeripheralPrinter {
		return e.CheckPrintAccess(ctx, model.PrintRequest{
			SessionID:    req.SessionID,
			PrinterName:  req.DeviceName,
			LocalPrinter: req.LocalPrinter,
			PDFExport:    req.PDFExport,
		})
	}

	ev := &evaluation{
		channel:   model.ChannelPeripheral,
		eventType: strings.ToUpper(string(req.Kind)) + "_ACCESS",
		category:  model.CategoryDevice,
		details: model.ViolationDetails{Device: &model.DeviceDetails{
			Kind:        req.Kind,
			DeviceID:    req.DeviceID,
			DeviceClass: req.DeviceClass,
			VendorID:    req.VendorID,
			ProductID:   req.ProductID,
		}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	var o outcome
	switch req.Kind {
	case model.PeripheralUSB:
		o = usbPipeline(sc.Policy, req)
	case model.PeripheralWebcam:
		o = devicePipeline(sc.Policy.WebcamPolicy, "webcam", model.ViolationWebcam)
	case model.PeripheralMicrophone:
		o = devicePipeline(sc.Policy.MicrophonePolicy, "microphone", model.ViolationMicrophone)
	default:
		o = unknownMode("peripheral kind", req.Kind)
	}
	return e.conclude(ctx, ev, o)
}

func usbPipeline(p *model.PodSecurityPolicy, req model.PeripheralRequest) outcome {
	vt := model.ViolationUSBDevice
	switch p.USBPolicy {
	case model.USBBlocked:
		return deny(vt, "usb.blocked", "USB devices are blocked by policy")
	case model.USBStorageBlocked:
		if isMassStorage(req.DeviceClass) {
			return deny(vt, "usb.storage_blocked", "USB mass storage devices are blocked by policy")
		}
	case model.USBWhitelistOnly:
		if !usbAllowed(p.AllowedUSBDevices, req) {
			return deny(vt, "usb.not_whitelisted", fmt.Sprintf("USB device %s is not in the allowed list", usbLabel(req)))
		}
	case model.USBAllowed:
	default:
		return unknownMode("usb_policy", p.USBPolicy)
	}
	return allow("usb.allowed", "USB device allowed")
}

func isMassStorage(class string) bool {
	return slices.Contains(massStorageClasses, strings.ToLower(strings.TrimSpace(class)))
}

// usbAllowed matches the device id or its "vendor:product" pair.
func usbAllowed(allowed []string, req model.PeripheralRequest) bool {
	var ids []string
	if req.DeviceID != "" {
		ids = append(ids, strings.ToLower(req.DeviceID))
	}
	if req.VendorID != "" && req.ProductID != "" {
		ids = append(ids, strings.ToLower(req.VendorID+":"+req.ProductID))
	}
	for _, a := range allowed {
		if slices.Contains(ids, strings.ToLower(strings.TrimSpace(a))) {
			return true
		}
	}
	return false
}

func usbLabel(req model.PeripheralRequest) string {
	if req.DeviceID != "" {
		return req.DeviceID
	}
	if req.VendorID != "" || req.ProductID != "" {
		return req.VendorID + ":" + req.ProductID
	}
	return "(unidentified)"
}

func devicePipeline(mode model.DevicePolicy, name string, vt model.ViolationType) outcome {
	switch mode {
	case model.DeviceBlocked:
		return deny(vt, name+".blocked", fmt.Sprintf("%s access is blocked by policy", titleCase(name)))
	case model.DeviceSessionPrompt:
		return prompt(name+".prompt", fmt.Sprintf("%s access requires user confirmation", titleCase(name)))
	case model.DeviceAllowed:
		return allow(name+".allowed", fmt.Sprintf("%s access allowed", titleCase(name)))
	default:
		return unknownMode(name+"_policy", mode)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CheckPrintAccess decides whether a print job may leave the pod.
func (e *Engine) CheckPrintAccess(ctx context.Context, req model.PrintRequest) (model.AccessDecision, error) {
	ev := &evaluation{
		channel:   model.ChannelPrint,
		eventType: "PRINT",
		category:  model.CategoryDataTransfer,
		details: model.ViolationDetails{Device: &model.DeviceDetails{
			Kind:     model.PeripheralPrinter,
			DeviceID: req.PrinterName,
		}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	return e.conclude(ctx, ev, printPipeline(sc.Policy, req))
}

func printPipeline(p *model.PodSecurityPolicy, req model.PrintRequest) outcome {
	vt := model.ViolationPrint
	switch p.PrintingPolicy {
	case model.PrintingBlocked:
		return deny(vt, "print.blocked", "Printing is disabled by policy")
	case model.PrintingLocalOnly:
		if !req.LocalPrinter {
			return deny(vt, "print.local_only", "Only local printing is allowed by policy")
		}
	case model.PrintingPDFOnly:
		if !req.PDFExport {
			return deny(vt, "print.pdf_only", "Only PDF export is allowed by policy")
		}
	case model.PrintingApprovalRequired:
		return needsApproval("print.approval_required", "Printing requires approval")
	case model.PrintingAllowed:
	default:
		return unknownMode("printing_policy", p.PrintingPolicy)
	}
	return allow("print.allowed", "Printing allowed")
}

// CheckScreenCapture decides whether the pod display may be captured.
func (e *Engine) CheckScreenCapture(ctx context.Context, req model.ScreenCaptureRequest) (model.AccessDecision, error) {
	ev := &evaluation{
		channel:   model.ChannelScreen,
		eventType: "SCREEN_CAPTURE",
		category:  model.CategoryScreen,
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	o := allow("screen.allowed", "Screen capture allowed")
	if sc.Policy.ScreenCaptureBlocking {
		o = deny(model.ViolationScreenCapture, "screen.blocked", "Screen capture is blocked by policy")
	}
	return e.conclude(ctx, ev, o)
}
