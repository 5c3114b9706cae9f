package fhirpath

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

func init() {
	defaultFunctions["contains"] = fnContainsString
	defaultFunctions["indexOf"] = fnIndexOf
	defaultFunctions["lastIndexOf"] = fnLastIndexOf
	defaultFunctions["substring"] = fnSubstring
	defaultFunctions["startsWith"] = fnStartsWith
	defaultFunctions["endsWith"] = fnEndsWith
	defaultFunctions["upper"] = fnUpper
	defaultFunctions["lower"] = fnLower
	defaultFunctions["replace"] = fnReplace
	defaultFunctions["matches"] = fnMatches
	defaultFunctions["replaceMatches"] = fnReplaceMatches
	defaultFunctions["length"] = fnLength
	defaultFunctions["toChars"] = fnToChars
	defaultFunctions["trim"] = fnTrim
	defaultFunctions["split"] = fnSplit
	defaultFunctions["join"] = fnJoin
	defaultFunctions["encode"] = fnEncode
	defaultFunctions["decode"] = fnDecode
	defaultFunctions["escape"] = fnEscape
	defaultFunctions["unescape"] = fnUnescape
}

// stringArg evaluates args[index] and coerces it to a singleton String.
func stringArg(ctx context.Context, this Collection, args functionArgs, index int) (string, bool, error) {
	v, err := args.arg(ctx, this, index)
	if err != nil {
		return "", false, err
	}
	s, ok, err := Singleton[String](v)
	if err != nil || !ok {
		return "", false, err
	}
	return string(s), true, nil
}

// thisString coerces `this` to a singleton String, the receiver every
// string function in this file operates against.
func thisString(this Collection) (string, bool, error) {
	s, ok, err := Singleton[String](this)
	if err != nil || !ok {
		return "", false, err
	}
	return string(s), true, nil
}

// fnContainsString implements the string method form of contains(substring),
// distinct from the `contains` membership operator parsed as a binary node.
func fnContainsString(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	sub, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Boolean(strings.Contains(s, sub))}, nil
}

func fnIndexOf(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	sub, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Integer(strings.Index(s, sub))}, nil
}

func fnLastIndexOf(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	sub, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Integer(strings.LastIndex(s, sub))}, nil
}

func fnSubstring(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	start, err := intArg(ctx, this, args, 0)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	if start < 0 || start >= len(runes) {
		return nil, nil
	}
	length := len(runes) - start
	if args.count > 1 {
		length, err = intArg(ctx, this, args, 1)
		if err != nil {
			return nil, err
		}
	}
	if length < 0 {
		return nil, nil
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
	}
	return Collection{String(string(runes[start:end]))}, nil
}

func fnStartsWith(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	prefix, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Boolean(strings.HasPrefix(s, prefix))}, nil
}

func fnEndsWith(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	suffix, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{Boolean(strings.HasSuffix(s, suffix))}, nil
}

func fnUpper(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{String(strings.ToUpper(s))}, nil
}

func fnLower(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{String(strings.ToLower(s))}, nil
}

func fnReplace(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	pattern, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	replacement, ok, err := stringArg(ctx, this, args, 1)
	if err != nil || !ok {
		return nil, err
	}
	if pattern == "" {
		return Collection{String(replacement + strings.Join(strings.Split(s, ""), replacement) + replacement)}, nil
	}
	return Collection{String(strings.ReplaceAll(s, pattern, replacement))}, nil
}

func fnMatches(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	pattern, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newTypeError("matches(): invalid regular expression %q: %v", pattern, err)
	}
	return Collection{Boolean(re.MatchString(s))}, nil
}

func fnReplaceMatches(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	pattern, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	replacement, ok, err := stringArg(ctx, this, args, 1)
	if err != nil || !ok {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newTypeError("replaceMatches(): invalid regular expression %q: %v", pattern, err)
	}
	// FHIRPath's $1-style backreferences line up with Go's regexp ${1} form.
	goReplacement := regexp.MustCompile(`\$(\d+)`).ReplaceAllString(replacement, `$${$1}`)
	return Collection{String(re.ReplaceAllString(s, goReplacement))}, nil
}

func fnLength(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return Collection{Integer(len([]rune(s)))}, nil
}

func fnToChars(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	runes := []rune(s)
	out := make(Collection, len(runes))
	for i, r := range runes {
		out[i] = String(string(r))
	}
	return out, nil
}

func fnTrim(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	return Collection{String(strings.TrimSpace(s))}, nil
}

func fnSplit(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	sep, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	parts := strings.Split(s, sep)
	out := make(Collection, len(parts))
	for i, p := range parts {
		out[i] = String(p)
	}
	return out, nil
}

func fnJoin(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	sep := ""
	if args.count > 0 {
		var ok bool
		var err error
		sep, ok, err = stringArg(ctx, this, args, 0)
		if err != nil {
			return nil, err
		}
		if !ok {
			sep = ""
		}
	}
	parts := make([]string, 0, len(this))
	for _, el := range this {
		s, ok, err := el.ToString(true)
		if err != nil {
			return nil, err
		}
		if ok {
			parts = append(parts, string(s))
		}
	}
	return Collection{String(strings.Join(parts, sep))}, nil
}

func fnEncode(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	format, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	switch format {
	case "base64":
		return Collection{String(base64.StdEncoding.EncodeToString([]byte(s)))}, nil
	case "hex":
		return Collection{String(hex.EncodeToString([]byte(s)))}, nil
	case "urlbase64":
		return Collection{String(base64.URLEncoding.EncodeToString([]byte(s)))}, nil
	default:
		return nil, newTypeError("encode(): unsupported format %q", format)
	}
}

func fnDecode(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	format, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	var decoded []byte
	switch format {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(s)
	case "hex":
		decoded, err = hex.DecodeString(s)
	case "urlbase64":
		decoded, err = base64.URLEncoding.DecodeString(s)
	default:
		return nil, newTypeError("decode(): unsupported format %q", format)
	}
	if err != nil {
		return nil, nil
	}
	return Collection{String(string(decoded))}, nil
}

func fnEscape(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	target, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	switch target {
	case "html":
		return Collection{String(escapeHTML(s))}, nil
	case "json":
		return Collection{String(escapeFHIRPathString(s))}, nil
	default:
		return nil, newTypeError("escape(): unsupported target %q", target)
	}
}

func fnUnescape(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	s, ok, err := thisString(this)
	if err != nil || !ok {
		return nil, err
	}
	target, ok, err := stringArg(ctx, this, args, 0)
	if err != nil || !ok {
		return nil, err
	}
	switch target {
	case "html":
		return Collection{String(unescapeHTML(s))}, nil
	case "json":
		return Collection{String(unescapeFHIRPathString(s))}, nil
	default:
		return nil, newTypeError("unescape(): unsupported target %q", target)
	}
}

var htmlEscapes = []struct{ raw, escaped string }{
	{"&", "&amp;"},
	{"<", "&lt;"},
	{">", "&gt;"},
	{`"`, "&quot;"},
	{"'", "&#39;"},
}

func escapeHTML(s string) string {
	for _, e := range htmlEscapes {
		s = strings.ReplaceAll(s, e.raw, e.escaped)
	}
	return s
}

func unescapeHTML(s string) string {
	for i := len(htmlEscapes) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, htmlEscapes[i].escaped, htmlEscapes[i].raw)
	}
	return s
}
