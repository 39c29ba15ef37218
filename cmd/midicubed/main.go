// Command midicubed is the composition root: it wires the four
// transports (DIN-5 UART, USB-MIDI in UMP or legacy event-packet framing, RTP-MIDI over
// Ethernet and WiFi) into one router.Core, advertises the network
// transports over mDNS, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/grandcat/zeroconf"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/w1nn3t0u-o7/midicube/internal/router"
	"github.com/w1nn3t0u-o7/midicube/transport/netmidi"
	"github.com/w1nn3t0u-o7/midicube/transport/uart"
	"github.com/w1nn3t0u-o7/midicube/transport/usbevt"
)

func main() {
	var (
		ethernetPort  = pflag.Uint16P("ethernet-port", "e", 5004, "UDP port for the Ethernet RTP-MIDI session.")
		wifiPort      = pflag.Uint16P("wifi-port", "w", 5006, "UDP port for the WiFi RTP-MIDI session.")
		uartPath      = pflag.StringP("uart", "u", "", "Serial device path for the DIN-5 UART transport. Empty disables it.")
		usbPath       = pflag.StringP("usb", "U", "", "USB gadget endpoint device path for the USB transport. Empty disables it.")
		usbLegacy     = pflag.BoolP("usb-legacy", "L", false, "Speak the legacy USB-MIDI 1.0 Event Packet framing on the USB endpoint instead of USB-MIDI 2.0 Generic (UMP) framing.")
		serviceName   = pflag.StringP("name", "n", "midicube", "Bonjour service name advertised for the Ethernet and WiFi sessions.")
		autoTranslate = pflag.BoolP("auto-translate", "t", true, "Translate automatically between MIDI 1.0 and UMP at route boundaries.")
		mergeInputs   = pflag.BoolP("merge", "m", false, "Broadcast every input to every other transport, ignoring the routing matrix.")
		defaultGroup  = pflag.Uint8P("default-group", "g", 0, "UMP group (0-15) assigned to translated outbound packets.")
		verbose       = pflag.BoolP("verbose", "v", false, "Enable debug logging.")
	)
	pflag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(runConfig{
		ethernetPort:  *ethernetPort,
		wifiPort:      *wifiPort,
		uartPath:      *uartPath,
		usbPath:       *usbPath,
		usbLegacy:     *usbLegacy,
		serviceName:   *serviceName,
		autoTranslate: *autoTranslate,
		mergeInputs:   *mergeInputs,
		defaultGroup:  *defaultGroup,
	}); err != nil {
		log.Fatal("midicubed exited", "err", err)
	}
}

type runConfig struct {
	ethernetPort  uint16
	wifiPort      uint16
	uartPath      string
	usbPath       string
	usbLegacy     bool
	serviceName   string
	autoTranslate bool
	mergeInputs   bool
	defaultGroup  uint8
}

// defaultMatrix routes every transport to every other, leaving loop
// suppression (source==dest) to router.Matrix.Enabled.
func defaultMatrix() router.Matrix {
	var m router.Matrix
	for s := router.TransportID(0); s < router.TransportID(router.NumTransports); s++ {
		for d := router.TransportID(0); d < router.TransportID(router.NumTransports); d++ {
			m = m.Set(s, d, true)
		}
	}
	return m
}

func run(cfg runConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	core := router.NewCore(router.Config{
		Matrix:        defaultMatrix(),
		AutoTranslate: cfg.autoTranslate,
		MergeInputs:   cfg.mergeInputs,
		DefaultGroup:  cfg.defaultGroup,
	})

	g, gctx := errgroup.WithContext(ctx)

	ethSession := netmidi.NewSession(router.Ethernet, core.Enqueue)
	core.RegisterSink(router.Ethernet, ethSession)
	g.Go(func() error { return ethSession.Listen(gctx, cfg.ethernetPort) })

	wifiSession := netmidi.NewSession(router.WiFi, core.Enqueue)
	core.RegisterSink(router.WiFi, wifiSession)
	g.Go(func() error { return wifiSession.Listen(gctx, cfg.wifiPort) })

	if cfg.uartPath != "" {
		uartTransport, err := uart.Open(cfg.uartPath, core.Enqueue)
		if err != nil {
			return fmt.Errorf("midicubed: %w", err)
		}
		defer uartTransport.Close()
		core.RegisterSink(router.UART, uartTransport)
		g.Go(func() error { return uartTransport.Run(gctx) })
	}

	if cfg.usbPath != "" {
		usbFile, err := os.OpenFile(cfg.usbPath, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("midicubed: open usb endpoint %s: %w", cfg.usbPath, err)
		}
		defer usbFile.Close()

		var usbTransport *usbevt.Transport
		if cfg.usbLegacy {
			usbTransport = usbevt.New(usbFile, 0, core.Enqueue)
		} else {
			usbTransport = usbevt.NewUMP(usbFile, core.Enqueue)
		}
		core.RegisterSink(router.USB, usbTransport)
		g.Go(func() error { return usbTransport.Run(gctx) })
	}

	ethServer, err := zeroconf.Register(cfg.serviceName+"-eth", "_apple-midi._udp", "local.", int(cfg.ethernetPort), []string{"txtv=0", "lo=1", "la=2"}, nil)
	if err != nil {
		return fmt.Errorf("midicubed: mDNS register ethernet: %w", err)
	}
	defer ethServer.Shutdown()

	wifiServer, err := zeroconf.Register(cfg.serviceName+"-wifi", "_apple-midi._udp", "local.", int(cfg.wifiPort), []string{"txtv=0", "lo=1", "la=2"}, nil)
	if err != nil {
		return fmt.Errorf("midicubed: mDNS register wifi: %w", err)
	}
	defer wifiServer.Shutdown()

	g.Go(func() error { return core.Run(gctx) })

	log.Info("midicubed running", "ethernet_port", cfg.ethernetPort, "wifi_port", cfg.wifiPort, "uart", cfg.uartPath != "", "usb", cfg.usbPath != "")

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}
