package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

type outputFormat int

const (
	TXT outputFormat = iota
	JSON
	YAML
)

var outputFormatString = "txt"

func parseOutputFormat(format string) (outputFormat, error) {
	switch strings.ToLower(format) {
	case "txt", "text", "":
		return TXT, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return TXT, fmt.Errorf("%w: %s", errVMUnknownFormat, format)
	}
}

// render writes value as JSON or YAML, or calls txt for the table form.
func render(out io.Writer, formatString string, value interface{}, txt func(io.Writer)) error {
	format, err := parseOutputFormat(formatString)
	if err != nil {
		return err
	}

	switch format {
	case JSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		return encoder.Encode(value)
	case YAML:
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)

		err = encoder.Encode(value)
		if err != nil {
			return fmt.Errorf("error encoding yaml: %w", err)
		}

		return encoder.Close()
	default:
		txt(out)

		return nil
	}
}

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(myTableStyle)
	t.AppendHeader(header)

	return t
}

func rightAlign(columns ...int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, number := range columns {
		configs = append(configs, table.ColumnConfig{Number: number, Align: text.AlignRight, AlignHeader: text.AlignRight})
	}

	return configs
}

func colorVMStatus(status string) string {
	upper := strings.ToUpper(status)

	switch upper {
	case "STOPPED":
		return color.RedString(upper)
	case "ERROR":
		return color.HiRedString(upper)
	case "PREPARING", "STARTING", "STOPPING":
		return color.YellowString(upper)
	case "PAUSED":
		return color.CyanString(upper)
	case "RUNNING":
		return color.GreenString(upper)
	default:
		return upper
	}
}

func colorRdpState(state string) string {
	upper := strings.ToUpper(state)

	switch upper {
	case "DISCONNECTED":
		return color.RedString(upper)
	case "CONNECTING":
		return color.YellowString(upper)
	case "CONNECTED":
		return color.GreenString(upper)
	case "ERROR":
		return color.HiRedString(upper)
	default:
		return upper
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
