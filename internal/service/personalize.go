// internal/service/personalize.go
package service

import (
    "context"
    "net/url"
    "strings"

    "github.com/rs/zerolog"
)

// TokenSource hands out the per-subscriber unsubscribe token.
type TokenSource interface {
    GetOrCreateUnsubToken(ctx context.Context, email string) (string, error)
}

const unsubscribeFooter = `<p style="font-size:12px;color:#888">Don't want these emails? <a href="{unsubscribe_url}">Unsubscribe</a>.</p>`

// UnsubscribePersonalizer fills per-recipient placeholders and makes sure
// every message carries an unsubscribe link. It never fails.
type UnsubscribePersonalizer struct {
    Tokens  TokenSource
    BaseURL string
    Log     zerolog.Logger
}

// RenderTemplate substitutes {key} placeholders in a single pass, so values
// are never scanned for further placeholders.
func RenderTemplate(template string, data map[string]string) string {
    pairs := make([]string, 0, 2*len(data))
    for k, v := range data {
        pairs = append(pairs, "{"+k+"}", v)
    }
    return strings.NewReplacer(pairs...).Replace(template)
}

func (p *UnsubscribePersonalizer) Personalize(ctx context.Context, html, recipient string) string {
    if !strings.Contains(html, "{unsubscribe_url}") {
        html = appendFooter(html)
    }
    return RenderTemplate(html, map[string]string{
        "email":           recipient,
        "unsubscribe_url": p.unsubscribeURL(ctx, recipient),
    })
}

func (p *UnsubscribePersonalizer) unsubscribeURL(ctx context.Context, recipient string) string {
    base := strings.TrimRight(p.BaseURL, "/") + "/unsubscribe"
    if p.Tokens == nil {
        return base
    }
    token, err := p.Tokens.GetOrCreateUnsubToken(ctx, recipient)
    if err != nil {
        p.Log.Warn().Err(err).Str("email", recipient).Msg("unsubscribe token unavailable, using tokenless link")
        return base
    }
    return base + "?token=" + url.QueryEscape(token)
}

func appendFooter(html string) string {
    if i := strings.LastIndex(strings.ToLower(html), "</body>"); i >= 0 {
        return html[:i] + unsubscribeFooter + html[i:]
    }
    return html + unsubscribeFooter
}
