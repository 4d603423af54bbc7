package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// NewTimeTools builds the clock and timezone lookups. now is injectable so
// tests get stable output.
func NewTimeTools(now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{
		&funcTool{
			name:        "get_current_time",
			description: "Get the current date and time in UTC, with the unix timestamp and Discord timestamp markup.",
			params:      objSchema(nil),
			describe: func(json.RawMessage) string {
				return "Checking the time..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				t := now().UTC()
				return JSON(timeReport(t, "UTC"))
			},
		},
		&funcTool{
			name:        "convert_timestamp",
			description: "Convert a unix timestamp to a readable time, optionally in a specific IANA timezone, with Discord timestamp markup.",
			params: objSchema(map[string]jsonschema.Definition{
				"timestamp": numProp("Unix timestamp in seconds."),
				"timezone":  strProp("IANA timezone name, e.g. Europe/London. Defaults to UTC."),
			}, "timestamp"),
			describe: func(json.RawMessage) string {
				return "Converting a timestamp..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Timestamp float64 `json:"timestamp"`
					Timezone  string  `json:"timezone"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				loc := time.UTC
				if in.Timezone != "" {
					l, err := time.LoadLocation(in.Timezone)
					if err != nil {
						return Errorf("unknown timezone %q", in.Timezone)
					}
					loc = l
				}
				t := time.Unix(int64(in.Timestamp), 0).In(loc)
				return JSON(timeReport(t, loc.String()))
			},
		},
		&funcTool{
			name:        "get_timezone_info",
			description: "Get the current time and UTC offset for an IANA timezone.",
			params: objSchema(map[string]jsonschema.Definition{
				"timezone": strProp("IANA timezone name, e.g. America/New_York."),
			}, "timezone"),
			describe: func(args json.RawMessage) string {
				if tz := argString(args, "timezone"); tz != "" {
					return "Looking up timezone " + tz + "..."
				}
				return "Looking up a timezone..."
			},
			execute: func(ctx context.Context, args json.RawMessage) Result {
				var in struct {
					Timezone string `json:"timezone"`
				}
				if err := decodeArgs(args, &in); err != nil {
					return Errorf("bad arguments: %v", err)
				}
				loc, err := time.LoadLocation(in.Timezone)
				if err != nil {
					return Errorf("unknown timezone %q", in.Timezone)
				}
				t := now().In(loc)
				abbrev, offset := t.Zone()
				return JSON(map[string]any{
					"timezone":     loc.String(),
					"abbreviation": abbrev,
					"utc_offset":   formatOffset(offset),
					"current_time": t.Format(time.RFC3339),
					"current_unix": t.Unix(),
				})
			},
		},
	}
}

func timeReport(t time.Time, zone string) map[string]any {
	return map[string]any{
		"iso":              t.Format(time.RFC3339),
		"unix":             t.Unix(),
		"weekday":          t.Weekday().String(),
		"timezone":         zone,
		"discord_format":   fmt.Sprintf("<t:%d:F>", t.Unix()),
		"discord_relative": fmt.Sprintf("<t:%d:R>", t.Unix()),
	}
}

func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
