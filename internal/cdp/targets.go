package cdp

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/devbridge/internal/protocol"
)

// TargetInfo describes an inspectable target.
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
}

type targetsResult struct {
	TargetInfos []TargetInfo `json:"targetInfos"`
}

type attachResult struct {
	SessionID string `json:"sessionId"`
}

// Targets lists the browser's targets.
func (c *Client) Targets(ctx context.Context) ([]TargetInfo, error) {
	d, err := c.Domain("Target")
	if err != nil {
		return nil, err
	}
	res, err := CallAs[targetsResult](ctx, d, "getTargets", nil)
	if err != nil {
		return nil, err
	}
	return res.TargetInfos, nil
}

// FirstPage returns the first target of type page.
func (c *Client) FirstPage(ctx context.Context) (TargetInfo, error) {
	targets, err := c.Targets(ctx)
	if err != nil {
		return TargetInfo{}, err
	}
	for _, t := range targets {
		if t.Type == "page" {
			return t, nil
		}
	}
	return TargetInfo{}, fmt.Errorf("no page target among %d targets", len(targets))
}

// Attach opens a flattened session on targetID. The returned id is also
// recorded in the session directory.
func (c *Client) Attach(ctx context.Context, targetID string) (string, error) {
	d, err := c.Domain("Target")
	if err != nil {
		return "", err
	}
	res, err := CallAs[attachResult](ctx, d, "attachToTarget", protocol.NewParams("targetId", targetID, "flatten", true))
	if err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("attach %s: empty session id", targetID)
	}
	return res.SessionID, nil
}

// NavigateResult is the outcome of Page.navigate.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId"`
	ErrorText string `json:"errorText"`
}

// Navigate loads url in the page targeted by ctx.
func (c *Client) Navigate(ctx context.Context, url string) (NavigateResult, error) {
	d, err := c.Domain("Page")
	if err != nil {
		return NavigateResult{}, err
	}
	res, err := CallAs[NavigateResult](ctx, d, "navigate", protocol.NewParams("url", url))
	if err != nil {
		return res, err
	}
	if res.ErrorText != "" {
		return res, fmt.Errorf("navigate %s: %s", url, res.ErrorText)
	}
	return res, nil
}
