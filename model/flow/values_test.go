package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValues(t *testing.T) {
	values := Values{
		"count":   "12",
		"ratio":   2,
		"enabled": "true",
		"order":   map[string]interface{}{"id": 7, "items": []interface{}{map[string]interface{}{"sku": "a"}}},
	}
	assert.Equal(t, 12, values.GetInt("count"))
	assert.Equal(t, 2.0, values.GetFloat("ratio"))
	assert.True(t, values.GetBool("enabled"))
	assert.Equal(t, "7", values.GetString("order.id"))
	assert.Equal(t, "", values.GetString("order.missing"))
	assert.Equal(t, Values{"id": 7, "items": []interface{}{map[string]interface{}{"sku": "a"}}}, values.GetMap("order"))

	cloned := values.Clone()
	cloned.GetMap("order").Set("id", 8)
	assert.Equal(t, 7, values.GetMap("order")["id"])
	assert.Equal(t, []string{"count", "enabled", "order", "ratio"}, values.Keys())
}

func TestAsValues(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	v, ok := AsValues(&payload{Name: "x"})
	assert.True(t, ok)
	assert.Equal(t, "x", v.GetString("name"))
	_, ok = AsValues(nil)
	assert.False(t, ok)
	_, ok = AsValues(12)
	assert.False(t, ok)
}

func TestContextClone(t *testing.T) {
	row := &Context{ID: "c1", Data: NewData(map[string]interface{}{"x": 1})}
	clone := row.Clone()
	clone.Data.BusinessData.Set("x", 2)
	assert.Equal(t, 1, row.Data.BusinessData["x"])
	views := Views([]*Context{row})
	assert.Equal(t, "c1", views[0]["id"])
	assert.Equal(t, map[string]interface{}{"x": 1}, views[0]["businessData"])
}
