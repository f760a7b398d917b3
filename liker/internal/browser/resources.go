package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests of the listed kinds (images, fonts, media,
// stylesheets, or raw CDP resource types). The returned router must be
// stopped with the tab.
func blockResources(page *rod.Page, kinds []string) (*rod.HijackRouter, error) {
	blocked := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		blocked[strings.ToLower(k)] = true
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

func shouldBlock(blocked map[string]bool, t proto.NetworkResourceType) bool {
	switch kind := strings.ToLower(string(t)); kind {
	case "image":
		return blocked["images"] || blocked[kind]
	case "font":
		return blocked["fonts"] || blocked[kind]
	case "stylesheet":
		return blocked["stylesheets"] || blocked[kind]
	default:
		return blocked[kind]
	}
}
