package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/vk/cmipconv/internal/model"
)

// Table is a parsed destination table.
type Table struct {
	Name string
	ID   string
	raw  []byte
}

// ReadTable loads and minimally validates the table file name in dir.
func ReadTable(dir, name string) (*Table, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, &model.TableLoadError{Table: name, Err: err}
	}
	if !gjson.ValidBytes(data) {
		return nil, &model.TableLoadError{Table: name, Err: errors.New("not valid JSON")}
	}
	if !gjson.GetBytes(data, "variable_entry").IsObject() {
		return nil, &model.TableLoadError{Table: name, Err: errors.New("no variable_entry section")}
	}
	return &Table{Name: name, ID: tableID(data, name), raw: data}, nil
}

// tableID returns the short table identifier, e.g. "Amon" for "Table Amon".
func tableID(data []byte, name string) string {
	id := strings.TrimSpace(gjson.GetBytes(data, "Header.table_id").String())
	id = strings.TrimPrefix(id, "Table ")
	if id != "" {
		return id
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// Entry describes one variable of a table.
type Entry struct {
	Units      string
	Positive   string
	Dimensions []string
	Frequency  string
}

// Entry returns the variable_entry for name.
func (t *Table) Entry(name string) (*Entry, error) {
	e := gjson.GetBytes(t.raw, "variable_entry."+gjsonEscape(name))
	if !e.Exists() {
		return nil, &model.TableLoadError{Table: t.Name, Err: fmt.Errorf("no variable_entry for %q", name)}
	}
	return &Entry{
		Units:      e.Get("units").String(),
		Positive:   e.Get("positive").String(),
		Dimensions: strings.Fields(e.Get("dimensions").String()),
		Frequency:  e.Get("frequency").String(),
	}, nil
}

// Variables lists the variable names the table declares.
func (t *Table) Variables() []string {
	var out []string
	gjson.GetBytes(t.raw, "variable_entry").ForEach(func(key, _ gjson.Result) bool {
		out = append(out, key.String())
		return true
	})
	return out
}

// Header returns a string field of the table header.
func (t *Table) Header(field string) string {
	return gjson.GetBytes(t.raw, "Header."+gjsonEscape(field)).String()
}

func gjsonEscape(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(s)
}
