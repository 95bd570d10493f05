package codegen

import (
	"path/filepath"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"

	"github.com/m910q/Vale/common"
)

// attachDebugInfo adds a compile unit for srcPath to the module.
func attachDebugInfo(m *ir.Module, srcPath string) {
	dir, file := filepath.Split(srcPath)
	if dir == "" {
		dir = "."
	}

	diFile := &metadata.DIFile{
		MetadataID: -1,
		Filename:   file,
		Directory:  filepath.Clean(dir),
	}

	cu := &metadata.DICompileUnit{
		MetadataID:   -1,
		Distinct:     true,
		Language:     enum.DwarfLangC,
		File:         diFile,
		Producer:     "Vale " + common.ValeVersion,
		EmissionKind: enum.EmissionKindFullDebug,
	}

	// Flag behavior 7 keeps the maximum on mismatch, 2 only warns.
	dwarfVersion := &metadata.Tuple{
		MetadataID: -1,
		Fields: []metadata.Field{
			constant.NewInt(types.I32, 7),
			&metadata.String{Value: "Dwarf Version"},
			constant.NewInt(types.I32, 4),
		},
	}
	debugInfoVersion := &metadata.Tuple{
		MetadataID: -1,
		Fields: []metadata.Field{
			constant.NewInt(types.I32, 2),
			&metadata.String{Value: "Debug Info Version"},
			constant.NewInt(types.I32, 3),
		},
	}

	m.MetadataDefs = append(m.MetadataDefs, cu, diFile, dwarfVersion, debugInfoVersion)
	m.NamedMetadataDefs["llvm.dbg.cu"] = &metadata.NamedDef{
		Name:  "llvm.dbg.cu",
		Nodes: []metadata.Node{cu},
	}
	m.NamedMetadataDefs["llvm.module.flags"] = &metadata.NamedDef{
		Name:  "llvm.module.flags",
		Nodes: []metadata.Node{dwarfVersion, debugInfoVersion},
	}
}
