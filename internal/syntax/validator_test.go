package syntax

import (
	"context"
	"strings"
	"testing"

	"github.com/ariel-frischer/simforge/internal/codegen"
	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wellFormed is a minimal script that passes every check.
const wellFormed = `import bpy
import math


def build():
    scene = bpy.context.scene
    scene.frame_start = 1
    scene.frame_end = 120
    bpy.ops.mesh.primitive_cube_add(location=(0, 0, 5))
    cube = bpy.context.view_layer.objects.active
    cube.rotation_euler = (math.radians(45), 0, 0)
    bpy.ops.rigidbody.object_add()
    bpy.ops.mesh.primitive_plane_add(size=20)
    bpy.ops.rigidbody.object_add()
    cube.rigid_body.mass = 2.0
    print(f"Baking rigid body simulation: frames {scene.frame_start}-{scene.frame_end}")
    bpy.ops.ptcache.bake_all(bake=True)
    bpy.ops.wm.save_as_mainfile(filepath="/tmp/out.blend")


if __name__ == "__main__":
    build()
`

func artifact(code string) codegen.Artifact {
	return codegen.Artifact{Code: code, TemplateID: "rigid_body"}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		code         string
		wantValid    bool
		wantScore    float64
		wantErrors   []string
		wantWarnings []string
	}{
		"well formed": {
			code:      wellFormed,
			wantValid: true,
			wantScore: 1.0,
		},
		"missing bpy import": {
			code:       strings.Replace(wellFormed, "import bpy\n", "", 1),
			wantScore:  0.5,
			wantErrors: []string{"Missing required import: 'bpy'"},
		},
		"forbidden operation": {
			code:      strings.Replace(wellFormed, "    build()", "    import os\n    os.system(\"rm -rf /\")\n    build()", 1),
			wantScore: 0.5,
			wantErrors: []string{
				"Security: Forbidden operation 'os.system' found. Blender scripts should not use this for safety.",
			},
		},
		"forbidden operation in comment is ignored": {
			code:      strings.Replace(wellFormed, "def build():", "# never call eval() here\ndef build():", 1),
			wantValid: true,
			wantScore: 1.0,
		},
		"three errors score zero": {
			code: strings.Replace(
				strings.Replace(wellFormed, "import bpy\n", "", 1),
				"    build()", "    exec(compile(\"x\", \"f\", \"exec\"))\n    build()", 1),
			wantErrors: []string{
				"Security: Forbidden operation 'exec(' found. Blender scripts should not use this for safety.",
				"Security: Forbidden operation 'compile(' found. Blender scripts should not use this for safety.",
				"Missing required import: 'bpy'",
			},
		},
		"unclosed bracket": {
			code:       strings.Replace(wellFormed, "location=(0, 0, 5))", "location=(0, 0, 5)", 1),
			wantScore:  0.5,
			wantErrors: []string{"Syntax error at line 9: '(' was never closed"},
		},
		"missing colon": {
			code:       strings.Replace(wellFormed, "def build():", "def build()", 1),
			wantScore:  0.5,
			wantErrors: []string{"Syntax error at line 5: expected ':' after 'def'"},
		},
		"active object without check": {
			code:         strings.Replace(wellFormed, "bpy.context.view_layer.objects.active", "bpy.context.active_object", 1),
			wantValid:    true,
			wantScore:    1.0,
			wantWarnings: []string{"Consider checking if bpy.context.active_object exists before using it", "Multiple bpy.ops calls detected. Ensure correct context is set."},
		},
		"deprecated link": {
			code:         strings.Replace(wellFormed, "    build()", "    bpy.context.scene.objects.link(None)\n    build()", 1),
			wantValid:    true,
			wantScore:    1.0,
			wantWarnings: []string{"Deprecated API: 'bpy.context.scene.objects.link'. Use bpy.context.collection.objects.link instead"},
		},
		"short script without main or bake": {
			code:      "import bpy\nbpy.context.scene.rigidbody_world.enabled = True\n",
			wantValid: true,
			wantScore: 1.0,
			wantWarnings: []string{
				"Code seems very short. Ensure all required steps are included.",
				`No main execution block found. Code should have 'if __name__ == "__main__"'`,
				"No baking operation detected. Physics simulations must be baked.",
			},
		},
		"blend without save": {
			code:      strings.Replace(wellFormed, "bpy.ops.wm.save_as_mainfile", "bpy.ops.wm.write_mainfile", 1),
			wantValid: true,
			wantScore: 1.0,
			wantWarnings: []string{
				"No save operation detected. Ensure .blend file is saved.",
			},
		},
	}

	v := NewValidator(nil)
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := v.Validate(artifact(tc.code))
			assert.Equal(t, tc.wantValid, r.Valid)
			assert.InDelta(t, tc.wantScore, r.Score, 1e-9)
			assert.Equal(t, tc.wantErrors, r.Errors)
			assert.Equal(t, tc.wantWarnings, r.Warnings)
			assert.Equal(t, len(tc.code), r.Metadata.CodeLength)
		})
	}
}

func TestCheckPython(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		code    string
		wantErr string
	}{
		"nested brackets":         {code: "x = [(1, 2), {3: [4]}]\n"},
		"strings hide brackets":   {code: "x = \"(\" + ')' + '''\n]\n'''\n"},
		"escaped quote":           {code: "x = 'it\\'s'\n"},
		"continuation":            {code: "if a and \\\n   b:\n    pass\n"},
		"one line if":             {code: "if x: y = 1\n"},
		"multi line call":         {code: "f(\n    1,\n    2,\n)\n"},
		"comment with quote":      {code: "# don't\nx = 1\n"},
		"mismatched closer":       {code: "x = (1, 2]\n", wantErr: "Syntax error at line 1: closing parenthesis ']' does not match opening parenthesis '(' on line 1"},
		"stray closer":            {code: "x = 1)\n", wantErr: "Syntax error at line 1: unmatched ')'"},
		"unterminated string":     {code: "x = 'abc\ny = 2\n", wantErr: "Syntax error at line 1: unterminated string literal"},
		"unterminated triple":     {code: "x = \"\"\"abc\n", wantErr: "Syntax error at line 1: unterminated triple-quoted string literal"},
		"header missing colon":    {code: "x = 1\nfor i in range(3)\n    pass\n", wantErr: "Syntax error at line 2: expected ':' after 'for'"},
		"else missing colon":      {code: "if x:\n    pass\nelse\n    pass\n", wantErr: "Syntax error at line 3: expected ':' after 'else'"},
		"colon in string ignored": {code: "while 'a:b'\n", wantErr: "Syntax error at line 1: expected ':' after 'while'"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := checkPython(tc.code)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantErr, err.Error())
		})
	}
}

func TestAutofix(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	t.Run("adds bpy and math imports", func(t *testing.T) {
		t.Parallel()
		broken := strings.Replace(strings.Replace(wellFormed, "import bpy\n", "", 1), "import math\n", "", 1)
		require.False(t, v.Validate(artifact(broken)).Valid)

		fixed := v.Autofix(artifact(broken))
		assert.True(t, strings.HasPrefix(fixed.Code, "import bpy\nimport math\n"))
		assert.Equal(t, "rigid_body", fixed.TemplateID)
		assert.True(t, v.Validate(fixed).Valid)
	})

	t.Run("adds math after existing bpy import", func(t *testing.T) {
		t.Parallel()
		code := "# header\nimport bpy\nx = math.pi\n"
		fixed := v.Autofix(artifact(code))
		assert.Equal(t, "# header\nimport bpy\nimport math\nx = math.pi\n", fixed.Code)
	})

	t.Run("leaves valid code alone", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, wellFormed, v.Autofix(artifact(wellFormed)).Code)
	})

	t.Run("cannot fix security errors", func(t *testing.T) {
		t.Parallel()
		code := strings.Replace(wellFormed, "    build()", "    eval(\"1\")\n    build()", 1)
		assert.False(t, v.Validate(v.Autofix(artifact(code))).Valid)
	})
}

// Every generated template must pass validation without warnings.
func TestValidate_GeneratedScripts(t *testing.T) {
	t.Parallel()

	g, err := codegen.NewGenerator(nil)
	require.NoError(t, err)
	v := NewValidator(nil)

	for _, category := range []plan.Category{plan.RigidBody, plan.FluidSmoke, plan.FluidFire, plan.FluidLiquid, plan.Cloth} {
		t.Run(string(category), func(t *testing.T) {
			t.Parallel()
			p, err := plan.New(plan.Spec{
				Category: category,
				Components: []plan.ComponentSpec{
					{Name: "thing", Shape: plan.Sphere, Count: 4, Material: "rubber", Scale: 0.5},
					{Name: "floor", Shape: plan.Plane, Count: 1, Material: "concrete", Scale: 10, Static: true},
				},
				Params:         plan.DefaultParams(),
				DurationFrames: 120,
			})
			require.NoError(t, err)
			e, err := plan.NewEnriched(p, make([]plan.MaterialProfile, 2))
			require.NoError(t, err)

			a, err := g.Generate(context.Background(), e, "/tmp/it's here.blend")
			require.NoError(t, err)

			r := v.Validate(a)
			assert.True(t, r.Valid, "errors: %v", r.Errors)
			assert.Empty(t, r.Warnings)
		})
	}
}
