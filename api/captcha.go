// Package api holds typed calls against the application backend.
package api

import (
	"context"

	"github.com/ambiyansyah-risyal/reqflow"
)

const captchaEndpoint = "/captcha"

// ImgCaptcha is an image captcha challenge.
type ImgCaptcha struct {
	UUID       string `json:"uuid"`
	Img        string `json:"img"`
	IsEnabled  bool   `json:"isEnabled"`
	ExpireTime int64  `json:"expireTime"`
}

// FetchImgCaptcha requests a new image captcha.
func FetchImgCaptcha(ctx context.Context, r *reqflow.FlatRequester) reqflow.TypedResult[ImgCaptcha] {
	return reqflow.FlatGet[ImgCaptcha](ctx, r, &reqflow.RequestConfig{URL: captchaEndpoint + "/image"})
}
