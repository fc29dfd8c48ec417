package rmesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Load reads the first mesh primitive of a glTF/GLB document into a Mesh.
// This is the scene-mesh and leaf-tile-mesh loader named in spec.md §6
// ("Inputs"); camera models and frame transforms remain external
// collaborators.
func Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf %s: %w", path, err)
	}
	if len(doc.Meshes) == 0 || len(doc.Meshes[0].Primitives) == 0 {
		return nil, fmt.Errorf("gltf %s has no mesh primitives", path)
	}
	prim := doc.Meshes[0].Primitives[0]

	out := &Mesh{}

	if posIdx, ok := prim.Attributes[gltf.POSITION]; ok {
		positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("read positions: %w", err)
		}
		out.Positions = make([]mgl32.Vec3, len(positions))
		for i, p := range positions {
			out.Positions[i] = mgl32.Vec3{p[0], p[1], p[2]}
		}
	}

	if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err := modeler.ReadNormal(doc, doc.Accessors[normIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
		out.Normals = make([]mgl32.Vec3, len(normals))
		for i, n := range normals {
			out.Normals[i] = mgl32.Vec3{n[0], n[1], n[2]}
		}
	}

	if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[uvIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("read uvs: %w", err)
		}
		out.UVs = make([][2]float32, len(uvs))
		for i, uv := range uvs {
			out.UVs[i] = [2]float32{uv[0], uv[1]}
		}
	}

	if prim.Indices != nil {
		indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
		out.Faces = make([][3]int32, 0, len(indices)/3)
		for i := 0; i+2 < len(indices); i += 3 {
			out.Faces = append(out.Faces, [3]int32{
				int32(indices[i]), int32(indices[i+1]), int32(indices[i+2]),
			})
		}
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("gltf %s: %w", path, err)
	}
	return out, nil
}

// buildDocument assembles a single-primitive glTF document for mesh and
// returns the document together with its primitive, so callers can
// attach a material before saving.
func buildDocument(mesh *Mesh) (*gltf.Document, *gltf.Primitive) {
	doc := gltf.NewDocument()

	positions := make([][3]float32, len(mesh.Positions))
	for i, p := range mesh.Positions {
		positions[i] = [3]float32{p[0], p[1], p[2]}
	}
	attrs := map[string]int{gltf.POSITION: modeler.WritePosition(doc, positions)}

	if mesh.HasNormals() {
		normals := make([][3]float32, len(mesh.Normals))
		for i, n := range mesh.Normals {
			normals[i] = [3]float32{n[0], n[1], n[2]}
		}
		attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}

	if mesh.HasUVs() {
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, mesh.UVs)
	}

	indices := make([]uint32, 0, len(mesh.Faces)*3)
	for _, f := range mesh.Faces {
		indices = append(indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}

	prim := &gltf.Primitive{
		Attributes: attrs,
		Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Primitives: []*gltf.Primitive{prim}})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(len(doc.Meshes) - 1)})
	if len(doc.Scenes) == 0 {
		doc.Scenes = append(doc.Scenes, &gltf.Scene{})
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	return doc, prim
}

// Save writes mesh as a single-primitive glTF/GLB document at path.
func Save(mesh *Mesh, path string) error {
	doc, _ := buildDocument(mesh)
	if err := gltf.Save(doc, path); err != nil {
		return fmt.Errorf("save gltf %s: %w", path, err)
	}
	return nil
}

// SaveWithTexture writes mesh like Save, with a material whose base
// color texture references textureFilename by relative URI, so a viewer
// opening the mesh loads the named texture alongside it. This is the
// debug mesh output of spec.md §6 ("a debug-named mesh that references
// one of the textures by filename"). The mesh must carry UVs.
func SaveWithTexture(mesh *Mesh, path, textureFilename string) error {
	if !mesh.HasUVs() {
		return fmt.Errorf("save gltf %s: mesh has no UVs to texture", path)
	}
	doc, prim := buildDocument(mesh)

	doc.Images = append(doc.Images, &gltf.Image{URI: textureFilename})
	doc.Textures = append(doc.Textures, &gltf.Texture{
		Source: gltf.Index(len(doc.Images) - 1),
	})
	doc.Materials = append(doc.Materials, &gltf.Material{
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: len(doc.Textures) - 1},
		},
	})
	prim.Material = gltf.Index(len(doc.Materials) - 1)

	if err := gltf.Save(doc, path); err != nil {
		return fmt.Errorf("save gltf %s: %w", path, err)
	}
	return nil
}
