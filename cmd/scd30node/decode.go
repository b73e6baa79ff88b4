package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scd30node-go/payload"
	"scd30node-go/x/conv"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a format-0x1E payload",
	Example: `  scd30node decode 1E1F347B4F850110AE73339960
  scd30node decode 1e1810ae73339960`,
	Args: cobra.ExactArgs(1),
	RunE: decodePayload,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func decodePayload(cmd *cobra.Command, args []string) error {
	arg := args[0]
	raw, ok := conv.Unhex(make([]byte, len(arg)/2), arg)
	if !ok {
		return fmt.Errorf("not a hex payload: %q", arg)
	}
	rec, err := payload.Decode(raw)
	if err != nil {
		return err
	}

	fmt.Printf("format 0x%02X, flags %s (0x%02X)\n", payload.Format, rec.Flags, byte(rec.Flags))
	if rec.Flags.Has(payload.FlagVbat) {
		fmt.Printf("  vbat  %.3f V\n", rec.Vbat)
	}
	if rec.Flags.Has(payload.FlagVcc) {
		fmt.Printf("  vcc   %.3f V\n", rec.Vcc)
	}
	if rec.Flags.Has(payload.FlagBoot) {
		fmt.Printf("  boot  %d\n", rec.Boot)
	}
	if rec.Flags.Has(payload.FlagTH) {
		fmt.Printf("  temp  %.2f °C\n", rec.TempC)
		fmt.Printf("  rh    %.1f %%\n", rec.RH)
	}
	if rec.Flags.Has(payload.FlagCO2PPM) {
		fmt.Printf("  co2   %.0f ppm\n", rec.CO2)
	}
	return nil
}
