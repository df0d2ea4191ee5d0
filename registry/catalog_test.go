package registry_test

import (
	"errors"
	"testing"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/registry"
)

func TestCatalog_RegisterAllInOrder(t *testing.T) {
	cat, err := registry.NewCatalog(
		registry.Module("bank.open", registry.Func("open", handleOpen)),
		registry.Module("bank.close", registry.Func("close", handleClose)),
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	if got := cat.Names(); len(got) != 2 || got[0] != "bank.close" {
		t.Fatalf("names=%v", got)
	}

	r := registry.New(nil)
	if err := cat.RegisterAll(r, []string{"bank.open", "bank.close"}); err != nil {
		t.Fatalf("register all: %v", err)
	}

	var first string
	for mt := range r.Bindings() {
		first = mt.Name()
		break
	}

	if first != "openAccount" {
		t.Fatalf("first=%s", first)
	}

	if _, ok := r.Find(cbus.TypeOf[closeAccount]()); !ok {
		t.Fatalf("close not bound")
	}
}

func TestCatalog_UnknownName(t *testing.T) {
	cat, _ := registry.NewCatalog(registry.Module("bank.open", registry.Func("open", handleOpen)))

	err := cat.RegisterAll(registry.New(nil), []string{"bank.missing"})
	if !errors.Is(err, berr.ErrInvalidSource) {
		t.Fatalf("want ErrInvalidSource, got %v", err)
	}
}

func TestCatalog_DuplicateName(t *testing.T) {
	_, err := registry.NewCatalog(
		registry.Module("bank", registry.Func("open", handleOpen)),
		registry.Module("bank", registry.Func("close", handleClose)),
	)
	if !errors.Is(err, berr.ErrInvalidSource) {
		t.Fatalf("want ErrInvalidSource, got %v", err)
	}
}
