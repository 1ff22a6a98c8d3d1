package main

import (
	"context"
	"fmt"
	"time"

	convai "github.com/koscakluka/ema-convai/core"
)

type localTimeParameters struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Zagreb"`
}

type localTimeResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func localTimeTool(now func() time.Time) convai.ClientTool {
	return convai.NewTypedClientTool("get_local_time", "Returns the current time on the user's machine",
		func(_ context.Context, parameters localTimeParameters) (localTimeResult, error) {
			location := time.Local
			if parameters.Timezone != "" {
				loaded, err := time.LoadLocation(parameters.Timezone)
				if err != nil {
					return localTimeResult{}, fmt.Errorf("unknown timezone %q: %w", parameters.Timezone, err)
				}
				location = loaded
			}

			current := now().In(location)
			return localTimeResult{
				Time:     current.Format(time.RFC3339),
				Timezone: location.String(),
			}, nil
		})
}
