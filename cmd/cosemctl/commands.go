package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/backkem/cosem/pkg/axdr"
	"github.com/backkem/cosem/pkg/config"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
	"github.com/backkem/cosem/pkg/security"
)

func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// printValue writes the hex encoding and, when it decodes, the value.
func printValue(w io.Writer, b []byte) {
	if len(b) == 0 {
		fmt.Fprintln(w, "(null)")
		return
	}
	fmt.Fprintf(w, "%X\n", b)
	if v, err := axdr.DecodeAll(b); err == nil {
		fmt.Fprintf(w, "= %s\n", v)
	}
}

func parseObject(class, name string) (datamodel.ClassID, obis.Code, error) {
	c, err := config.ParseClass(class)
	if err != nil {
		return 0, obis.Code{}, err
	}
	ln, err := obis.Parse(name)
	if err != nil {
		return 0, obis.Code{}, err
	}
	return c, ln, nil
}

func parseIndex(s string) (uint8, error) {
	n, err := cast.ToUint8E(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return n, nil
}

func parseAttribute(args []string) (datamodel.AttributeRef, error) {
	c, ln, err := parseObject(args[0], args[1])
	if err != nil {
		return datamodel.AttributeRef{}, err
	}
	n, err := parseIndex(args[2])
	if err != nil {
		return datamodel.AttributeRef{}, err
	}
	return datamodel.AttributeRef{Class: c, LogicalName: ln, Attribute: datamodel.AttributeID(n)}, nil
}

// association carries the client association flags shared by the
// request commands.
type association struct {
	clientSAP     uint16
	authenticated bool
}

func (as *association) register(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&as.clientSAP, "client", 16, "client SAP")
	cmd.Flags().BoolVar(&as.authenticated, "authenticated", false, "run as an HLS-authenticated association")
}

func (as *association) context(ctx context.Context) context.Context {
	return datamodel.WithAssociation(ctx, datamodel.Association{ClientSAP: as.clientSAP, Authenticated: as.authenticated})
}

func (a *app) decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode an A-XDR value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			v, err := axdr.DecodeAll(b)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	var (
		as       association
		selector uint8
		params   string
	)
	cmd := &cobra.Command{
		Use:   "get <class> <logical-name> <attribute>",
		Short: "Read an attribute",
		Example: `  cosemctl get register 1-0:1.8.0.255 2
  cosemctl get profile-generic 1-0:99.1.0.255 2 --selector 2 --params 020406000000010600000002120001120000`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseAttribute(args)
			if err != nil {
				return err
			}
			var sel *datamodel.AccessSelector
			if selector != 0 {
				b, err := decodeHex(params)
				if err != nil {
					return err
				}
				p, err := axdr.DecodeAll(b)
				if err != nil {
					return fmt.Errorf("selector parameters: %w", err)
				}
				sel = &datamodel.AccessSelector{Selector: selector, Parameters: p}
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			out, err := d.svc.Get(as.context(cmd.Context()), ref, sel)
			if err != nil {
				return fmt.Errorf("%s: %w", datamodel.ResultFor(err), err)
			}
			printValue(cmd.OutOrStdout(), out)
			return nil
		},
	}
	as.register(cmd)
	cmd.Flags().Uint8Var(&selector, "selector", 0, "access selector (1 = range, 2 = entry)")
	cmd.Flags().StringVar(&params, "params", "", "A-XDR encoded selector parameters")
	return cmd
}

func (a *app) setCommand() *cobra.Command {
	var as association
	cmd := &cobra.Command{
		Use:     "set <class> <logical-name> <attribute> <hex>",
		Short:   "Write an attribute",
		Example: `  cosemctl --state state.cbor set data 0-0:96.14.0.255 2 1102`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseAttribute(args)
			if err != nil {
				return err
			}
			b, err := decodeHex(args[3])
			if err != nil {
				return err
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			if err := d.svc.Set(as.context(cmd.Context()), ref, b); err != nil {
				return fmt.Errorf("%s: %w", datamodel.ResultFor(err), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), datamodel.ResultSuccess)
			return d.save()
		},
	}
	as.register(cmd)
	return cmd
}

func (a *app) actionCommand() *cobra.Command {
	var as association
	cmd := &cobra.Command{
		Use:     "action <class> <logical-name> <method> [hex]",
		Short:   "Invoke a method",
		Example: `  cosemctl --state state.cbor action script-table 0-0:10.0.100.255 1 120001`,
		Args:    cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ln, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			n, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			var param []byte
			if len(args) == 4 {
				if param, err = decodeHex(args[3]); err != nil {
					return err
				}
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			ref := datamodel.MethodRef{Class: c, LogicalName: ln, Method: datamodel.MethodID(n)}
			out, err := d.svc.Action(as.context(cmd.Context()), ref, param)
			if err != nil {
				return fmt.Errorf("%s: %w", datamodel.ResultFor(err), err)
			}
			printValue(cmd.OutOrStdout(), out)
			return d.save()
		},
	}
	as.register(cmd)
	return cmd
}

func (a *app) describeCommand() *cobra.Command {
	var as association
	cmd := &cobra.Command{
		Use:   "describe <class> <logical-name>",
		Short: "Read every attribute of an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ln, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			out, err := d.svc.Describe(as.context(cmd.Context()), datamodel.ObjectDefinition{Class: c, LogicalName: ln})
			if err != nil {
				return err
			}
			printValue(cmd.OutOrStdout(), out)
			return nil
		},
	}
	as.register(cmd)
	return cmd
}

func (a *app) tickCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the clock-driven objects once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if at != "" {
				var err error
				if now, err = cast.ToTimeE(at); err != nil {
					return fmt.Errorf("invalid time %q: %w", at, err)
				}
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			tickErr := d.svc.Tick(cmd.Context(), now)
			if err := d.save(); err != nil {
				return errors.Join(tickErr, err)
			}
			return tickErr
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "tick time, e.g. 2026-10-17T06:00:00Z (default now)")
	return cmd
}

func (a *app) runCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tick the device until interrupted, saving state on exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "device %q running with %d objects\n", d.Name, d.Registry.Len())
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					d.log.Info("shutting down")
					return d.save()
				case now := <-ticker.C:
					if err := d.svc.Tick(ctx, now); err != nil {
						d.log.Warnf("tick: %v", err)
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "tick interval")
	return cmd
}

var securityControls = map[string]security.SecurityControl{
	"auth":     security.Authentication,
	"enc":      security.Encryption,
	"auth-enc": security.AuthenticatedEncryption,
}

func (a *app) cipherCommand() *cobra.Command {
	var control string
	cmd := &cobra.Command{
		Use:   "cipher <apdu-hex>",
		Short: "Cipher an APDU with the device's security context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, ok := securityControls[control]
			if !ok {
				return fmt.Errorf("unknown security control %q (auth, enc, auth-enc)", control)
			}
			apdu, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			if err := d.requireSecurity(); err != nil {
				return err
			}
			frame, err := d.svc.Encrypt(sc, apdu)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%X\n", frame)
			return d.save()
		},
	}
	cmd.Flags().StringVar(&control, "control", "auth-enc", "security control: auth, enc, auth-enc")
	return cmd
}

func (a *app) decipherCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decipher <frame-hex>",
		Short: "Decipher a frame from the peer system title",
		Long: `Decipher a frame from the peer system title.

The frame must carry the security control the model requires. With a
state file the last accepted invocation counter is kept there, so a
replayed frame is rejected by later invocations too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			if err := d.requireSecurity(); err != nil {
				return err
			}
			apdu, err := d.svc.Decrypt(frame)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%X\n", apdu)
			return d.save()
		},
	}
}

func (a *app) hlsCommand() *cobra.Command {
	hls := &cobra.Command{
		Use:   "hls",
		Short: "High level security authentication",
	}
	hls.AddCommand(&cobra.Command{
		Use:   "challenge [length]",
		Short: "Generate a random challenge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 16
			if len(args) == 1 {
				var err error
				if n, err = cast.ToIntE(args[0]); err != nil {
					return err
				}
			}
			c, err := security.NewChallenge(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%X\n", c)
			return nil
		},
	}, &cobra.Command{
		Use:   "respond <mechanism> <peer-challenge-hex> [own-challenge-hex]",
		Short: "Answer the peer's challenge",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := security.ParseMechanism(args[0])
			if err != nil {
				return err
			}
			hexArgs, err := decodeAll(args[1:])
			if err != nil {
				return err
			}
			var own []byte
			if len(hexArgs) == 2 {
				own = hexArgs[1]
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			if err := d.requireSecurity(); err != nil {
				return err
			}
			resp, err := d.Security.Respond(m, hexArgs[0], own)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%X\n", resp)
			// GMAC responses consume the invocation counter.
			return d.save()
		},
	}, &cobra.Command{
		Use:   "verify <mechanism> <own-challenge-hex> <peer-challenge-hex> <response-hex>",
		Short: "Check the peer's answer to our challenge",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := security.ParseMechanism(args[0])
			if err != nil {
				return err
			}
			b, err := decodeAll(args[1:])
			if err != nil {
				return err
			}
			d, err := a.openDevice()
			if err != nil {
				return err
			}
			if err := d.requireSecurity(); err != nil {
				return err
			}
			if err := d.Security.Verify(m, b[0], b[1], b[2]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
			return nil
		},
	})
	return hls
}

func decodeAll(args []string) ([][]byte, error) {
	out := make([][]byte, len(args))
	for i, s := range args {
		b, err := decodeHex(s)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
