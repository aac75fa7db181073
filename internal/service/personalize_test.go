package service_test

import (
    "context"
    "errors"
    "strings"
    "testing"

    "github.com/rs/zerolog"

    "github.com/unclebandit/mailqueue-backend/internal/service"
)

type fakeTokens struct {
    err error
}

func (f fakeTokens) GetOrCreateUnsubToken(ctx context.Context, email string) (string, error) {
    if f.err != nil {
        return "", f.err
    }
    return "tok-" + strings.SplitN(email, "@", 2)[0], nil
}

func TestPersonalizeReplacesPlaceholders(t *testing.T) {
    p := &service.UnsubscribePersonalizer{Tokens: fakeTokens{}, BaseURL: "https://mail.example.com/", Log: zerolog.Nop()}

    got := p.Personalize(context.Background(), `<p>Hi {email}</p><a href="{unsubscribe_url}">x</a>`, "ann@example.com")
    want := `<p>Hi ann@example.com</p><a href="https://mail.example.com/unsubscribe?token=tok-ann">x</a>`
    if got != want {
        t.Errorf("got %q\nwant %q", got, want)
    }
}

func TestPersonalizeAppendsFooterInsideBody(t *testing.T) {
    p := &service.UnsubscribePersonalizer{Tokens: fakeTokens{}, BaseURL: "https://mail.example.com", Log: zerolog.Nop()}

    got := p.Personalize(context.Background(), "<html><body><p>news</p></body></html>", "bob@example.com")
    if !strings.Contains(got, "unsubscribe?token=tok-bob") {
        t.Errorf("footer link missing: %q", got)
    }
    if !strings.HasSuffix(got, "</body></html>") {
        t.Errorf("footer not placed before </body>: %q", got)
    }
}

func TestPersonalizeFallsBackWithoutToken(t *testing.T) {
    p := &service.UnsubscribePersonalizer{Tokens: fakeTokens{err: errors.New("db down")}, BaseURL: "https://mail.example.com", Log: zerolog.Nop()}

    got := p.Personalize(context.Background(), `<a href="{unsubscribe_url}">x</a>`, "c@example.com")
    if got != `<a href="https://mail.example.com/unsubscribe">x</a>` {
        t.Errorf("got %q", got)
    }
}

func TestRenderTemplate(t *testing.T) {
    got := service.RenderTemplate("Hi {email}, {missing}", map[string]string{"email": "d@example.com"})
    if got != "Hi d@example.com, {missing}" {
        t.Errorf("got %q", got)
    }
}

func TestPersonalizeLeavesPlaceholdersInsideValues(t *testing.T) {
    p := &service.UnsubscribePersonalizer{Tokens: fakeTokens{}, BaseURL: "https://mail.example.com", Log: zerolog.Nop()}
    recipient := "{unsubscribe_url}@example.com"

    want := `<p>Hi {unsubscribe_url}@example.com</p><a href="https://mail.example.com/unsubscribe?token=tok-%7Bunsubscribe_url%7D">x</a>`
    // Repeated so every map iteration order is likely to be seen.
    for i := 0; i < 50; i++ {
        got := p.Personalize(context.Background(), `<p>Hi {email}</p><a href="{unsubscribe_url}">x</a>`, recipient)
        if got != want {
            t.Fatalf("run %d: got %q\nwant %q", i, got, want)
        }
    }
}

func TestRenderTemplateDoesNotCascade(t *testing.T) {
    data := map[string]string{"a": "{b}", "b": "{a}"}
    for i := 0; i < 50; i++ {
        if got := service.RenderTemplate("{a}-{b}", data); got != "{b}-{a}" {
            t.Fatalf("run %d: got %q", i, got)
        }
    }
}
