package httpapi

import (
	"net/http"

	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
	"diffusiond/internal/tiling"
	"diffusiond/pkg/types"
)

func handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req types.ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sig, err := BuildSchedule(req)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, types.ScheduleResponse{Sigmas: sig})
}

// BuildSchedule computes the sigma sequence described by req. An empty
// scheduler name means karras and an empty family means sd1.
func BuildSchedule(req types.ScheduleRequest) (schedule.Sigmas, error) {
	name := req.Scheduler
	if name == "" {
		name = string(schedule.Karras)
	}
	alg, err := schedule.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	fam, err := schedule.ParseFamily(req.Family)
	if err != nil {
		return nil, err
	}
	secondOrder := false
	if req.Sampler != "" {
		n, err := sampler.ParseName(req.Sampler)
		if err != nil {
			return nil, err
		}
		secondOrder = n.SecondOrder()
	}
	ms := schedule.ForFamily(fam)
	smin, smax := schedule.Unset, schedule.Unset
	if req.SigmaMin != nil && req.SigmaMax != nil && *req.SigmaMin >= 0 && *req.SigmaMax >= 0 {
		smin, smax = *req.SigmaMin, *req.SigmaMax
	}
	lo, hi, err := schedule.ResolveBounds(smin, smax, ms)
	if err != nil {
		return nil, err
	}
	rho := sampler.DefaultRho
	if req.Rho != nil {
		rho = *req.Rho
	}
	return schedule.Build(schedule.Params{
		Algorithm:   alg,
		Steps:       req.Steps,
		SigmaMin:    lo,
		SigmaMax:    hi,
		Rho:         rho,
		Family:      fam,
		SecondOrder: secondOrder,
		Sampling:    ms,
	})
}

func handleTiles(w http.ResponseWriter, r *http.Request) {
	var req types.TilesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scale := req.ScaleFactor
	if scale == 0 {
		scale = defaultScaleFactor
	}
	rects, err := tiling.Plan(req.Height, req.Width, req.TileSize, scale)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, types.TilesResponse{Tiles: ToRects(rects)})
}

// ToRects converts a tile plan to its wire form.
func ToRects(rects []tiling.Rect) []types.Rect {
	out := make([]types.Rect, len(rects))
	for i, rc := range rects {
		out[i] = types.Rect{Left: rc.Left, Top: rc.Top, Right: rc.Right, Bottom: rc.Bottom}
	}
	return out
}
