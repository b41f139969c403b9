package infra

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"click-reply-correlator/correlator/domain"
)

const DefaultLinkBaseURL = "https://l.riverlinedebtsupport.in"

var replyTmpl = template.Must(template.New("reply").Parse(
	`<b>{{.Title}}</b><br>{{.Body}}<br><br>
{{if .Buttons}}Choose next: <br>{{range .Buttons}}<a href="{{.Href}}">{{.Label}}</a><br>{{end}}{{else}}<p>We'll follow up soon.</p>{{end}}
`))

type replyButton struct {
	Href  string
	Label string
}

// HTMLRenderer monta o corpo da resposta: texto da escolha + botões com as
// opções restantes, cada um apontando para {base}/{path}?email=...
type HTMLRenderer struct {
	baseURL string
}

func NewHTMLRenderer(linkBaseURL string) *HTMLRenderer {
	if strings.TrimSpace(linkBaseURL) == "" {
		linkBaseURL = DefaultLinkBaseURL
	}
	return &HTMLRenderer{baseURL: strings.TrimRight(linkBaseURL, "/")}
}

// Render implementa domain.ReplyRenderer.
func (r *HTMLRenderer) Render(choice domain.Choice, recipient domain.Identity) (string, error) {
	cp := choice.Copy()

	suffix := ""
	if !recipient.Empty() {
		suffix = "?email=" + url.QueryEscape(recipient.String())
	}

	remaining := choice.Remaining()
	buttons := make([]replyButton, 0, len(remaining))
	for _, c := range remaining {
		buttons = append(buttons, replyButton{
			Href:  r.baseURL + "/" + c.Path() + suffix,
			Label: c.Label(),
		})
	}

	var buf bytes.Buffer
	err := replyTmpl.Execute(&buf, struct {
		Title   string
		Body    string
		Buttons []replyButton
	}{Title: cp.Title, Body: cp.Body, Buttons: buttons})
	if err != nil {
		return "", fmt.Errorf("render reply: %w", err)
	}
	return buf.String(), nil
}
