package visuals

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

var (
	titlePrompt = template.Must(template.New("title").Parse(
		`Book cover art for "{{.Title}}", {{.Style}} style, masterpiece, best quality, elegant, captivating, ` +
			`room for title text (but no actual text), high quality illustration, 16:9 aspect ratio.`))

	scenePrompt = template.Must(template.New("scene").Parse(
		`Cinematic illustration of a key scene: {{.Scene}}, Context: {{.Characters}} ` +
			`{{.Style}} style, masterpiece, best quality, highly detailed, dramatic composition, ` +
			`visual storytelling, 8k resolution, 16:9 aspect ratio, no text, no watermark.`))

	entityPrompt = template.Must(template.New("entity").Parse(
		`Full body character design of {{.Name}} as {{.Role}}, {{.Style}} style, masterpiece, best quality, ` +
			`centered, expressive, detailed clothing, clean background, 8k resolution, no text.`))

	portraitPrompt = template.Must(template.New("portrait").Parse(
		`Close-up portrait of {{.Name}} as {{.Role}}, centered character, facing the viewer, {{.Style}} style, ` +
			`masterpiece, best quality, expressive, highly detailed, soft diffused lighting, ` +
			`clean plain white background, no text, no logo, no watermark, framed to work well as a circular avatar.`))
)

type promptData struct {
	Title      string
	Scene      string
	Characters string
	Name       string
	Role       string
	Style      string
}

func render(tmpl *template.Template, data promptData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Templates are fixed at init and only take strings.
		panic(fmt.Sprintf("render %s prompt: %v", tmpl.Name(), err))
	}
	return buf.String()
}

// imageURL builds the GET URL for one generated image.
func imageURL(endpoint, prompt string, seed, width, height int) string {
	q := url.Values{}
	q.Set("seed", fmt.Sprint(seed))
	q.Set("width", fmt.Sprint(width))
	q.Set("height", fmt.Sprint(height))
	q.Set("nologo", "true")
	return strings.TrimRight(endpoint, "/") + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}
