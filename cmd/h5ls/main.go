// Command h5ls lists the object tree of an HDF5 file, with optional
// inspection of virtual dataset mapping tables.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/sciforge/hdf5"
)

var (
	app = kingpin.New("h5ls", "List objects in an HDF5 file.")

	file    = app.Arg("file", "HDF5 file to inspect.").Required().String()
	virtual = app.Flag("virtual", "Print the mapping table of this virtual dataset path.").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	f, err := hdf5.Open(*file)
	if err != nil {
		kingpin.Fatalf("open failed: %v", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
		}
	}()

	if *virtual != "" {
		if err := printMappings(f, *virtual); err != nil {
			kingpin.Fatalf("%v", err)
		}
		return
	}

	printTree(f)
}

// printTree renders every object of the file as one table row.
func printTree(f *hdf5.File) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Path", "Kind", "Dims", "Info"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	f.Walk(func(path string, obj hdf5.Object) {
		switch o := obj.(type) {
		case *hdf5.Group:
			table.Append([]string{path, "group", "", fmt.Sprintf("%d children", len(o.Children()))})
		case *hdf5.Dataset:
			dims := ""
			if d, err := o.Dims(); err == nil {
				dims = fmt.Sprintf("%v", d)
			}
			info := ""
			if s, err := o.Info(); err == nil {
				info = s
			}
			table.Append([]string{path, "dataset", dims, info})
		}
	})

	table.Render()
}

// printMappings renders the mapping table of a virtual dataset.
func printMappings(f *hdf5.File, path string) error {
	ds, err := f.DatasetByPath(path)
	if err != nil {
		return err
	}

	mappings, err := ds.VirtualMappings()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Source file", "Source dataset", "Virtual selection", "Source selection"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for i, m := range mappings {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			m.SourceFile,
			m.SourceDataset,
			m.VirtualSelection,
			m.SourceSelection,
		})
	}

	table.Render()
	return nil
}
