package browser

import (
	"strings"

	"github.com/cgedge/slipfill/pkg/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts requests and fails the listed resource
// types. The returned router must be stopped on close.
func applyResourceBlocking(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	blockSet := blockSetOf(types)

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if blockSet[strings.ToLower(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}

	go router.Run()
	return router, nil
}

// blockSetOf normalizes configured names to CDP resource types.
func blockSetOf(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		if t = config.ResourceType(t); t != "" {
			set[t] = true
		}
	}
	return set
}
