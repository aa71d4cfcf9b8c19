package math

// Vertex3D is the GPU vertex layout: 11 tightly packed floats, 44 bytes.
type Vertex3D struct {
	Position Vec3
	Texcoord Vec2
	Normal   Vec3
	Tangent  Vec3
}

// GeometryGenerateNormals writes a flat face normal into the three vertices of every triangle.
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalized()

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GeometryGenerateTangents derives per-triangle tangents from positions and texture coordinates.
func GeometryGenerateTangents(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		d1 := vertices[i1].Texcoord.Sub(vertices[i0].Texcoord)
		d2 := vertices[i2].Texcoord.Sub(vertices[i0].Texcoord)

		dividend := d1.X*d2.Y - d2.X*d1.Y
		if dividend == 0 {
			// degenerate uv mapping, keep whatever tangent is there
			continue
		}
		fc := 1.0 / dividend

		tangent := Vec3{
			fc * (d2.Y*edge1.X - d1.Y*edge2.X),
			fc * (d2.Y*edge1.Y - d1.Y*edge2.Y),
			fc * (d2.Y*edge1.Z - d1.Y*edge2.Z),
		}.Normalized()

		vertices[i0].Tangent = tangent
		vertices[i1].Tangent = tangent
		vertices[i2].Tangent = tangent
	}
}
