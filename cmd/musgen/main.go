package main

import (
	"os"
	"reflect"
	"strings"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// go:generate runs from core or storage; generate from the project root
	if strings.HasSuffix(cwd, "core") || strings.HasSuffix(cwd, "storage") {
		if err := os.Chdir(".."); err != nil {
			panic(err)
		}
	}

	generateRecords()
	generateCatalog()
}

// Unix micro timestamps
var timeOpts = typeops.WithTimeUnit(typeops.Micro)

func generateRecords() {
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/assetpipe/core"),
	)
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Checkpoint](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(timeOpts))
	if err != nil {
		panic(err)
	}

	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile("./core/records_mus.gen.go", bs, 0644); err != nil {
		panic(err)
	}
}

func generateCatalog() {
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/assetpipe/storage"),
	)
	if err != nil {
		panic(err)
	}

	g.AddDefinedType(reflect.TypeFor[storage.FieldType]())
	g.AddDefinedType(reflect.TypeFor[storage.Dynamic]())

	err = g.AddStruct(reflect.TypeFor[storage.FieldMapping](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[storage.Mapping](),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[storage.Settings](),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[storage.Collection](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(timeOpts))
	if err != nil {
		panic(err)
	}

	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}
	if err := os.WriteFile("./storage/catalog_mus.gen.go", bs, 0644); err != nil {
		panic(err)
	}
}
