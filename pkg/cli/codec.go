package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cgedge/slipfill/pkg/config"
	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/slip"
)

var decodeCommand = &cli.Command{
	Name:      "decode",
	Usage:     "Decode a slip payload and print its items as JSON",
	ArgsUsage: "[payload]",
	Description: `Decodes the payload given as argument, or the one in --file. The output
is the plain JSON slip document.

Examples:
  slipfill decode eyJpdGVtcyI6W119
  slipfill decode --file payload.txt`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "File holding an encoded payload",
		},
	},
	Action: runDecode,
}

var encodeCommand = &cli.Command{
	Name:      "encode",
	Usage:     "Encode a slip file into a payload",
	ArgsUsage: "<slip-file>",
	Description: `Reads a JSON or YAML slip and prints the payload accepted by --cgpp.
With --url the payload is printed as an app link carrying it in the fragment.

Examples:
  slipfill encode picks.yaml
  slipfill encode --url picks.json`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "url",
			Usage: "Print an app URL with the payload in its fragment",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config.yaml (for the app root)",
		},
	},
	Action: runEncode,
}

func runDecode(c *cli.Context) error {
	var sl *slip.Slip
	var err error
	switch {
	case c.String("file") != "":
		sl, err = slip.ReadPayloadFile(c.String("file"))
	case c.NArg() == 1:
		sl, err = slip.Decode(c.Args().First())
	default:
		return core.ErrInvalidConfig.WithMessage("decode takes one payload argument or --file")
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(sl, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func runEncode(c *cli.Context) error {
	if c.NArg() != 1 {
		return core.ErrInvalidConfig.WithMessage("encode takes exactly one slip file")
	}
	sl, err := slip.ReadFile(c.Args().First())
	if err != nil {
		return err
	}

	if !c.Bool("url") {
		encoded, err := slip.Encode(sl)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, encoded)
		return nil
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return core.ErrInvalidConfig.WithCause(err)
		}
	}
	fmt.Fprintln(c.App.Writer, entryURL(cfg.Site.AppRoot, sl))
	return nil
}
