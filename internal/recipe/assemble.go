package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Assemble decodes a model reply into a Recipe, filling defaults and validating
// every field. Failures are reported as a *ValidationError.
func Assemble(raw []byte) (*Recipe, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &ValidationError{Fields: []FieldError{{Path: "$", Problem: "not a JSON object"}}}
	}

	var d decoder
	r := d.recipe(obj)
	r.normalize()

	fields := d.fields
	if err := Validate(r); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		for _, f := range ve.Fields {
			if !d.covers(f.Path) {
				fields = append(fields, f)
			}
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return r, nil
}

// decoder decodes a recipe field by field so that every type mismatch is
// reported under its own indexed path.
type decoder struct {
	fields []FieldError
}

func (d *decoder) fail(path, problem string) {
	d.fields = append(d.fields, FieldError{Path: path, Problem: problem})
}

// covers reports whether path is, or lies under, a field that failed to decode.
func (d *decoder) covers(path string) bool {
	for _, f := range d.fields {
		if path == f.Path || strings.HasPrefix(path, f.Path+".") || strings.HasPrefix(path, f.Path+"[") {
			return true
		}
	}
	return false
}

// value decodes raw into dst. Absent and null values leave dst untouched.
func (d *decoder) value(raw json.RawMessage, path string, dst interface{}) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			d.fail(path, fmt.Sprintf("must be %s, got %s", kind(typeErr.Type), typeErr.Value))
		} else {
			d.fail(path, "is malformed")
		}
		return false
	}
	return true
}

func kind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Map, reflect.Struct:
		return "an object"
	case reflect.Slice:
		return "an array"
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int64:
		return "an integer"
	case reflect.Float64:
		return "a number"
	}
	return t.String()
}

func (d *decoder) object(raw json.RawMessage, path string) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if !d.value(raw, path, &obj) {
		return nil
	}
	return obj
}

func (d *decoder) array(raw json.RawMessage, path string) []json.RawMessage {
	var items []json.RawMessage
	if !d.value(raw, path, &items) {
		return nil
	}
	return items
}

func (d *decoder) stringList(raw json.RawMessage, path string) []string {
	items := d.array(raw, path)
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		d.value(item, fmt.Sprintf("%s[%d]", path, i), &out[i])
	}
	return out
}

func (d *decoder) recipe(obj map[string]json.RawMessage) *Recipe {
	r := &Recipe{}
	d.value(obj["title"], "title", &r.Title)
	d.value(obj["description"], "description", &r.Description)
	r.Ingredients = d.stringList(obj["ingredients"], "ingredients")

	if items := d.array(obj["steps"], "steps"); items != nil {
		r.Steps = make([]Step, len(items))
		for i, item := range items {
			path := fmt.Sprintf("steps[%d]", i)
			step := d.object(item, path)
			if step == nil {
				continue
			}
			d.value(step["title"], path+".title", &r.Steps[i].Title)
			d.value(step["description"], path+".description", &r.Steps[i].Description)
			r.Steps[i].Tools = d.stringList(step["tools"], path+".tools")
			d.value(step["duration"], path+".duration", &r.Steps[i].Duration)
		}
	}

	if n := d.object(obj["nutrition"], "nutrition"); n != nil {
		r.Nutrition = &NutritionInfo{}
		d.value(n["calories_per_serving"], "nutrition.calories_per_serving", &r.Nutrition.CaloriesPerServing)
		d.value(n["protein_g"], "nutrition.protein_g", &r.Nutrition.ProteinG)
		d.value(n["carbs_g"], "nutrition.carbs_g", &r.Nutrition.CarbsG)
		d.value(n["fat_g"], "nutrition.fat_g", &r.Nutrition.FatG)
		d.value(n["fiber_g"], "nutrition.fiber_g", &r.Nutrition.FiberG)
		d.value(n["servings"], "nutrition.servings", &r.Nutrition.Servings)
	}
	return r
}

// Validate checks a recipe against the schema rules.
func Validate(r *Recipe) error {
	return check(r, "")
}

// validateNutrition checks standalone nutrition information; field paths are
// reported under "nutrition." as for a recipe's embedded nutrition.
func validateNutrition(n *NutritionInfo) error {
	return check(n, "nutrition.")
}

func check(v interface{}, prefix string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Path: fieldPath(prefix, fe.Namespace()), Problem: problem(fe)})
	}
	return &ValidationError{Fields: fields}
}

// fieldPath replaces the root struct name with prefix:
// "Recipe.steps[1].title" -> "steps[1].title".
func fieldPath(prefix, ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return prefix + ns[i+1:]
	}
	return prefix + ns
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}
