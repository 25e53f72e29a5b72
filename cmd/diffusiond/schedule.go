package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"diffusiond/internal/httpapi"
	"diffusiond/pkg/types"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print a sigma schedule",
	Example: `  diffusiond schedule --scheduler karras --steps 20
  diffusiond schedule --scheduler ays --family sdxl --steps 30`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		var req types.ScheduleRequest
		req.Scheduler, _ = f.GetString("scheduler")
		req.Steps, _ = f.GetInt("steps")
		req.Family, _ = f.GetString("family")
		req.Sampler, _ = f.GetString("sampler")
		if f.Changed("sigma-min") && f.Changed("sigma-max") {
			lo, _ := f.GetFloat64("sigma-min")
			hi, _ := f.GetFloat64("sigma-max")
			req.SigmaMin, req.SigmaMax = &lo, &hi
		}
		if f.Changed("rho") {
			rho, _ := f.GetFloat64("rho")
			req.Rho = &rho
		}
		sig, err := httpapi.BuildSchedule(req)
		if err != nil {
			return err
		}
		parts := make([]string, len(sig))
		for i, s := range sig {
			parts[i] = strconv.FormatFloat(s, 'g', 8, 64)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
		return err
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	f := scheduleCmd.Flags()
	f.String("scheduler", "karras", "karras|exponential|turbo|align_your_steps|normal|simple")
	f.Int("steps", 20, "Number of steps")
	f.String("family", "sd1", "Model family: sd1|sdxl|svd")
	f.String("sampler", "", "Sampler name; second-order samplers fold the schedule")
	f.Float64("sigma-min", -1, "Custom lower bound (needs --sigma-max)")
	f.Float64("sigma-max", -1, "Custom upper bound (needs --sigma-min)")
	f.Float64("rho", 7, "Karras rho")
}
