package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const installedDescriptor = `
name: myapp
services:
  web:
    image: nginx:1.25
    environment:
      - API_KEY=old-secret
      - MODE=prod
    expose:
      - "80"
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: hunter2
      MAX_CONN: 100
`

func TestHasStructuralChange_EnvValueOnly(t *testing.T) {
	next := `
name: myapp
services:
  web:
    image: nginx:1.25
    environment:
      - API_KEY=new-secret
      - MODE=prod
    expose:
      - "80"
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: rotated
      MAX_CONN: 250
`
	assert.False(t, HasStructuralChange(installedDescriptor, next))
}

func TestHasStructuralChange_ImageTag(t *testing.T) {
	next := `
name: myapp
services:
  web:
    image: nginx:1.27
    environment:
      - API_KEY=old-secret
      - MODE=prod
    expose:
      - "80"
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: hunter2
      MAX_CONN: 100
`
	assert.True(t, HasStructuralChange(installedDescriptor, next))
}

func TestHasStructuralChange_EnvKeysMatter(t *testing.T) {
	next := `
name: myapp
services:
  web:
    image: nginx:1.25
    environment:
      - API_KEY=old-secret
      - MODE=prod
      - DEBUG=1
    expose:
      - "80"
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: hunter2
      MAX_CONN: 100
`
	assert.True(t, HasStructuralChange(installedDescriptor, next))
}

func TestHasStructuralChange_IgnoresOrderCommentsAndQuoting(t *testing.T) {
	next := `
# reordered copy
services:
  db:
    environment:
      MAX_CONN: 100
      POSTGRES_PASSWORD: hunter2
    image: "postgres:16"
  web:
    expose: ["80"]  # flow style
    image: nginx:1.25
    environment:
      - API_KEY=old-secret
      - MODE=prod
name: myapp
`
	assert.False(t, HasStructuralChange(installedDescriptor, next))
}

func TestHasStructuralChange_ScalarTypesKept(t *testing.T) {
	a := "services:\n  web:\n    image: app\n    expose: [\"80\"]\n"
	b := "services:\n  web:\n    image: app\n    expose: [80]\n"
	assert.True(t, HasStructuralChange(a, b))
}

func TestHasStructuralChange_ParseFailureFallsBackToRawEquality(t *testing.T) {
	broken := "services: [unclosed"
	assert.False(t, HasStructuralChange(broken, broken))
	assert.True(t, HasStructuralChange(broken, installedDescriptor))
	assert.True(t, HasStructuralChange(installedDescriptor, broken+" "))
}

func TestHasStructuralChange_EmptyInputs(t *testing.T) {
	assert.False(t, HasStructuralChange("", ""))
	assert.True(t, HasStructuralChange("", installedDescriptor))
}
