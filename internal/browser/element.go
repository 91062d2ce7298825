package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/pasteup/dom"
)

// Element is a rod element seen as a dom.Element.
type Element struct {
	el *rod.Element
	id string
}

// Identity is the CDP backend node ID, stable for the node's lifetime.
func (e *Element) Identity(ctx context.Context) (string, error) {
	if e.id != "" {
		return e.id, nil
	}
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return "", fmt.Errorf("browser: describe: %w", err)
	}
	e.id = "b" + strconv.Itoa(int(node.BackendNodeID))
	return e.id, nil
}

func (e *Element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

type jsFile struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Data         string `json:"data"`
	LastModified int64  `json:"lastModified"`
}

// SetFiles builds a DataTransfer in page and assigns its file list.
func (e *Element) SetFiles(ctx context.Context, files []*dom.Payload) error {
	arg := make([]jsFile, len(files))
	for i, f := range files {
		arg[i] = jsFile{
			Name:         f.Name,
			Type:         f.Type,
			Data:         base64.StdEncoding.EncodeToString(f.Data),
			LastModified: f.LastModified.UnixMilli(),
		}
	}
	res, err := e.el.Context(ctx).Eval(setFilesJS, arg)
	if err != nil {
		return fmt.Errorf("browser: set files: %w", err)
	}
	if n := res.Value.Int(); n != len(files) {
		return fmt.Errorf("browser: set files: %d of %d files kept", n, len(files))
	}
	return nil
}

func (e *Element) Dispatch(ctx context.Context, ev dom.Event) error {
	if _, err := e.el.Context(ctx).Eval(dispatchJS, ev.Type, ev.Bubbles, ev.Cancelable, ev.PinTarget); err != nil {
		return fmt.Errorf("browser: dispatch %s: %w", ev.Type, err)
	}
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.focus()`)
	return err
}

func (e *Element) Blur(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.blur()`)
	return err
}

// Click calls el.click() in page. No pointer input is synthesised.
func (e *Element) Click(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return err
}

// Ancestors lists parent elements nearest first. body and html never match
// the filter, and every other ancestor of a body descendant lies inside body.
func (e *Element) Ancestors(ctx context.Context) ([]dom.Element, error) {
	els, err := e.el.Context(ctx).Parents(":not(body):not(html)")
	if err != nil {
		return nil, fmt.Errorf("browser: ancestors: %w", err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}
