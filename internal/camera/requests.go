package camera

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Settings are the sensor parameters applied once before streaming.
type Settings struct {
	WhiteBalance     string // auto, fixed_fluor1, fixed_fluor2, fixed_indoor, fixed_outdoor1, fixed_outdoor2, hold
	Exposure         string // auto, flickerfree50, flickerfree60, hold
	ExposurePriority int    // 0 quality, 50 none, 100 framerate
	Brightness       int
	ColorLevel       int
}

// StreamParams select the MJPEG stream the camera produces.
type StreamParams struct {
	FPS         int
	Compression int
	Resolution  string
	Rotation    int
}

const (
	controlPath = "/axis-cgi/admin/param.cgi"
	streamPath  = "/axis-cgi/mjpg/video.cgi"
)

// BasicAuth returns the base64 token for an Authorization: Basic header
func BasicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// ControlRequest builds the one-shot settings request.
func ControlRequest(host string, s Settings, auth string) []byte {
	query := strings.Join([]string{
		"action=update",
		"ImageSource.I0.Sensor.WhiteBalance=" + url.QueryEscape(s.WhiteBalance),
		"ImageSource.I0.Sensor.Exposure=" + url.QueryEscape(s.Exposure),
		fmt.Sprintf("ImageSource.I0.Sensor.ExposurePriority=%d", s.ExposurePriority),
		fmt.Sprintf("ImageSource.I0.Sensor.Brightness=%d", s.Brightness),
		fmt.Sprintf("ImageSource.I0.Sensor.ColorLevel=%d", s.ColorLevel),
	}, "&")
	return buildGet(host, controlPath+"?"+query, auth)
}

// StreamRequest builds the request that starts the continuous MJPEG stream.
func StreamRequest(host string, p StreamParams, auth string) []byte {
	query := strings.Join([]string{
		fmt.Sprintf("des_fps=%d", p.FPS),
		fmt.Sprintf("compression=%d", p.Compression),
		"resolution=" + url.QueryEscape(p.Resolution),
		fmt.Sprintf("rotation=%d", p.Rotation),
		"color=1",
		"colorlevel=100",
	}, "&")
	return buildGet(host, streamPath+"?"+query, auth)
}

// buildGet formats an HTTP/1.0 GET. 1.0 keeps servers from answering with a
// chunked body, which the part scanner does not understand.
func buildGet(host, target, auth string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.0\r\n", target)
	if host != "" {
		fmt.Fprintf(&b, "Host: %s\r\n", host)
	}
	b.WriteString("Connection: Keep-Alive\r\n")
	if auth != "" {
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", auth)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
