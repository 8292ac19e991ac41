package perw

import (
	"fmt"
	"gopeview/common"
	"io"
	"strings"

	"github.com/pkg/errors"
)

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("═", max(len([]rune(title)), 18)))
}

// result turns a directory lookup or walk failure into a result, treating
// ErrNotPresent as an absent directory.
func result(name, category string, count int, err error) *common.DirectoryResult {
	if errors.Is(err, ErrNotPresent) {
		return common.NewAbsent(name, category)
	}
	return common.NewFailed(name, category, count, err)
}

func (v *View[H]) PrintHeaders(w io.Writer) *common.DirectoryResult {
	heading(w, "🏗️  PE HEADER INFORMATION")
	width := "PE32"
	if v.Is64() {
		width = "PE32+"
	}
	fmt.Fprintf(w, "Format:          %s (%s layout)\n", width, v.Layout())
	fmt.Fprintf(w, "Machine Type:    %s\n", v.Machine())
	fmt.Fprintf(w, "File Type:       %s\n", map[bool]string{true: "DLL", false: "Executable"}[v.IsDLL()])
	fmt.Fprintf(w, "Image Base:      0x%X\n", v.ImageBase())
	fmt.Fprintf(w, "Entry Point:     0x%X (RVA)\n", v.EntryPoint())
	fmt.Fprintf(w, "Size of Image:   %d bytes (%s)\n", v.SizeOfImage(), common.FormatFileSize(int64(v.SizeOfImage())))
	fmt.Fprintf(w, "Size of Headers: %d bytes\n", v.SizeOfHeaders())
	fmt.Fprintf(w, "Alignment:       section 0x%X, file 0x%X\n", v.SectionAlignment(), v.FileAlignment())
	if v.CheckSum() != 0 {
		fmt.Fprintf(w, "Checksum:        0x%X\n", v.CheckSum())
	} else {
		fmt.Fprintf(w, "Checksum:        Not set\n")
	}
	fmt.Fprintf(w, "Subsystem:       %d (%s)\n", v.Subsystem(), SubsystemName(v.Subsystem()))
	fmt.Fprintf(w, "DLL Characteristics: 0x%X (%s)\n", v.DllCharacteristics(), DllCharacteristicsString(v.DllCharacteristics()))

	dirs := v.DataDirectories()
	active := 0
	fmt.Fprintf(w, "\nDATA DIRECTORIES (%d declared):\n", len(dirs))
	for i, d := range dirs {
		if d.VirtualAddress == 0 && d.Size == 0 {
			continue
		}
		active++
		fmt.Fprintf(w, "   • %-16s RVA: 0x%08X  Size: %d\n", DirectoryName(i), d.VirtualAddress, d.Size)
	}
	fmt.Fprintln(w)
	return common.NewParsed("headers", common.CategoryHeaders, fmt.Sprintf("%s, %d sections", width, v.NumSections()), active)
}

func (v *View[H]) PrintSections(w io.Writer) *common.DirectoryResult {
	heading(w, "📊 SECTION ANALYSIS")
	infos := v.SectionInfos()
	if len(infos) == 0 {
		fmt.Fprintf(w, "%s No sections found\n\n", common.SymbolCross)
		return common.NewParsed("sections", common.CategoryHeaders, "empty section table", 0)
	}
	fmt.Fprintln(w, "┌──────────┬─────────────┬─────────────┬─────────────┬─────────────┬──────────┐")
	fmt.Fprintln(w, "│ Name     │ Virtual Addr│ File Offset │ Size        │ Permissions │ Entropy  │")
	fmt.Fprintln(w, "├──────────┼─────────────┼─────────────┼─────────────┼─────────────┼──────────┤")
	for _, s := range infos {
		fmt.Fprintf(w, "│ %-8s │ 0x%08X  │ 0x%08X  │ %-11s │ %-11s │ %-8.2f │\n",
			common.TruncateString(s.Name, 8),
			s.VirtualAddress,
			s.Offset,
			common.FormatFileSize(int64(s.Size)),
			common.FormatPermissions(s.IsExecutable, s.IsReadable, s.IsWritable),
			s.Entropy)
	}
	fmt.Fprintln(w, "└──────────┴─────────────┴─────────────┴─────────────┴─────────────┴──────────┘")
	for _, s := range infos {
		fmt.Fprintf(w, "   %s: %s\n      sha256 %s\n", s.Name, SectionFlags(s.Flags), s.SHA256Hash)
	}
	if v.Layout() == LayoutDisk {
		if overlay, err := v.Overlay(); err == nil {
			fmt.Fprintf(w, "Overlay Status:  %s %s at offset 0x%X\n", common.SymbolWarn,
				common.FormatFileSize(int64(len(overlay))), v.PhysicalSize())
		} else {
			fmt.Fprintf(w, "Overlay Status:  %s No overlay detected\n", common.SymbolCheck)
		}
	}
	fmt.Fprintln(w)
	return common.NewParsed("sections", common.CategoryHeaders, "section table", len(infos))
}

func (v *View[H]) PrintExports(w io.Writer) *common.DirectoryResult {
	heading(w, "🔍 EXPORT ANALYSIS")
	defer fmt.Fprintln(w)
	exp, err := v.Exports()
	if err != nil {
		fmt.Fprintf(w, "%s No export directory (%v)\n", common.SymbolCross, err)
		return result("exports", common.CategoryTables, 0, err)
	}
	name, err := exp.DllName()
	if err != nil {
		name = "?"
	}
	hdr := exp.Header()
	fmt.Fprintf(w, "Module:          %s\n", name)
	fmt.Fprintf(w, "Ordinal Base:    %d\n", hdr.Base)
	fmt.Fprintf(w, "Functions:       %d (%d named)\n\n", hdr.NumberOfFunctions, hdr.NumberOfNames)

	count := 0
	for x, err := range exp.All() {
		if err != nil {
			fmt.Fprintf(w, "%s %v\n", common.SymbolWarn, err)
			return result("exports", common.CategoryTables, count, err)
		}
		count++
		label := x.Name
		if label == "" {
			label = "(ordinal only)"
		}
		if x.IsForward() {
			fmt.Fprintf(w, "   • %s (Ordinal: %d) -> %s\n", label, x.Ordinal, x.Forward)
		} else {
			fmt.Fprintf(w, "   • %s (Ordinal: %d, RVA: 0x%08X)\n", label, x.Ordinal, x.RVA)
		}
	}
	return common.NewParsed("exports", common.CategoryTables, name, count)
}

func (v *View[H]) PrintImports(w io.Writer) *common.DirectoryResult {
	heading(w, "📦 IMPORTS ANALYSIS")
	defer fmt.Fprintln(w)
	imp, err := v.Imports()
	if err != nil {
		fmt.Fprintf(w, "%s No imports found (%v)\n", common.SymbolCross, err)
		return result("imports", common.CategoryTables, 0, err)
	}
	modules, functions := 0, 0
	for mod, err := range imp.Modules() {
		if err != nil {
			fmt.Fprintf(w, "%s %v\n", common.SymbolWarn, err)
			return result("imports", common.CategoryTables, modules, err)
		}
		modules++
		name, err := mod.Name()
		if err != nil {
			fmt.Fprintf(w, "%s %v\n", common.SymbolWarn, err)
			return result("imports", common.CategoryTables, modules, err)
		}
		fmt.Fprintf(w, "📚 %s\n", strings.ToUpper(name))
		i := 0
		for th, err := range mod.Thunks() {
			if err != nil {
				fmt.Fprintf(w, "   %s %v\n", common.SymbolWarn, err)
				return result("imports", common.CategoryTables, modules, err)
			}
			slot, _ := mod.SlotRVA(i)
			if th.ByOrdinal {
				fmt.Fprintf(w, "   • %s (IAT: 0x%08X)\n", th, slot)
			} else {
				fmt.Fprintf(w, "   • %s (Hint: %d, IAT: 0x%08X)\n", th, th.Hint, slot)
			}
			i++
		}
		functions += i
	}
	fmt.Fprintf(w, "\nTotal: %d functions from %d DLLs\n", functions, modules)
	return common.NewParsed("imports", common.CategoryTables, fmt.Sprintf("%d functions", functions), modules)
}

func (v *View[H]) PrintRelocations(w io.Writer) *common.DirectoryResult {
	heading(w, "🔧 RELOCATION ANALYSIS")
	defer fmt.Fprintln(w)
	rel, err := v.Relocations()
	if err != nil {
		fmt.Fprintf(w, "%s No relocations (%v)\n", common.SymbolCross, err)
		return result("relocations", common.CategoryTables, 0, err)
	}
	blocks, entries := 0, 0
	for b, err := range rel.Blocks() {
		if err != nil {
			fmt.Fprintf(w, "%s %v\n", common.SymbolWarn, err)
			return result("relocations", common.CategoryTables, blocks, err)
		}
		blocks++
		entries += b.Len()
		types := make(map[string]int)
		for r := range b.Entries() {
			types[r.TypeName()]++
		}
		fmt.Fprintf(w, "   • Page 0x%08X: %d entries %v\n", b.PageRVA, b.Len(), types)
	}
	return common.NewParsed("relocations", common.CategoryTables, fmt.Sprintf("%d entries", entries), blocks)
}

func (v *View[H]) PrintResources(w io.Writer) *common.DirectoryResult {
	heading(w, "🗂️  RESOURCE ANALYSIS")
	defer fmt.Fprintln(w)
	res, err := v.Resources()
	if err != nil {
		fmt.Fprintf(w, "Resource Table:  %s Not present\n", common.SymbolInfo)
		return result("resources", common.CategoryResources, 0, err)
	}
	leaves := 0
	err = res.Walk(func(path []ResourceName, data ResourceData) error {
		leaves++
		parts := make([]string, len(path))
		for i, n := range path {
			parts[i] = n.String()
		}
		if len(path) > 0 && !path[0].Named {
			parts[0] = TypeName(path[0].ID)
		}
		fmt.Fprintf(w, "   • %-32s RVA: 0x%08X  Size: %-8d CodePage: %d\n",
			strings.Join(parts, "/"), data.RVA(), data.Size(), data.CodePage())
		return nil
	})
	if err != nil {
		fmt.Fprintf(w, "%s %v\n", common.SymbolWarn, err)
		return result("resources", common.CategoryResources, leaves, err)
	}
	return common.NewParsed("resources", common.CategoryResources, "resource tree", leaves)
}
