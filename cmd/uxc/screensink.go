package main

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/signetco/corefw/internal/display"
	"github.com/signetco/corefw/lcd"
	"github.com/signetco/corefw/rgb16"
)

// lcdSink backs display.ScreenSink with the Waveshare SPI panel. As
// display.ScreenParams documents, pixel layout of each screen is
// entirely the display MCU's concern (a real build runs LVGL against
// it); this sink renders a flat per-ScreenKind background colour plus
// a status band instead, standing in for the LVGL layout tree the way
// cmd/simcore's in-memory stand-ins replace hardware elsewhere in this
// tree.
type lcdSink struct {
	mu  sync.Mutex
	lcd *lcd.LCD
	img *rgb16.Image
}

func newLCDSink() (*lcdSink, error) {
	panel, err := lcd.Open()
	if err != nil {
		return nil, fmt.Errorf("uxc: lcd: %w", err)
	}
	bounds := image.Rectangle{Max: panel.Dims()}
	return &lcdSink{
		lcd: panel,
		img: rgb16.New(bounds),
	}, nil
}

func (s *lcdSink) Close() { s.lcd.Close() }

func (s *lcdSink) ShowScreen(cmd display.ShowScreenCmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bg := screenColour(cmd.Params.Kind)
	bounds := s.img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s.img.Set(x, y, bg)
		}
	}
	drawStatusBand(s.img, cmd.Params)

	return s.lcd.Draw(s.img, bounds)
}

func screenColour(kind display.ScreenKind) color.NRGBA {
	switch kind {
	case display.ScreenOnboarding:
		return color.NRGBA{R: 0x10, G: 0x30, B: 0x60, A: 0xff}
	case display.ScreenLocked:
		return color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	case display.ScreenMenu:
		return color.NRGBA{R: 0x18, G: 0x18, B: 0x18, A: 0xff}
	case display.ScreenTransaction:
		return color.NRGBA{R: 0x30, G: 0x50, B: 0x20, A: 0xff}
	case display.ScreenMenuFingerprints:
		return color.NRGBA{R: 0x20, G: 0x20, B: 0x40, A: 0xff}
	case display.ScreenFirmwareUpdate:
		return color.NRGBA{R: 0x50, G: 0x40, B: 0x10, A: 0xff}
	case display.ScreenBrightness:
		return color.NRGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}
	case display.ScreenInfo:
		return color.NRGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
	case display.ScreenMfg:
		return color.NRGBA{R: 0x60, G: 0x10, B: 0x10, A: 0xff}
	default:
		return color.NRGBA{A: 0xff}
	}
}

// drawStatusBand paints a thin top strip reflecting battery/charging
// state on the locked screen, the one piece of ScreenParams every
// build needs visible without a real font renderer wired in yet.
func drawStatusBand(img *rgb16.Image, params display.ScreenParams) {
	if params.Kind != display.ScreenLocked {
		return
	}
	bounds := img.Bounds()
	width := bounds.Dx() * params.Locked.BatteryPercent / 100
	band := color.NRGBA{G: 0xc0, A: 0xff}
	if params.Locked.IsCharging {
		band = color.NRGBA{R: 0xc0, G: 0xa0, A: 0xff}
	}
	for y := bounds.Min.Y; y < bounds.Min.Y+4 && y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+width && x < bounds.Max.X; x++ {
			img.Set(x, y, band)
		}
	}
}
