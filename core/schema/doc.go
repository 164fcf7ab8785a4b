/*
Package schema defines the core types for declarative resource definitions.

A resource is a named collection of documents sharing one schema. The schema
is pure data: it describes fields, their types, constraints and relationships,
and carries no behavior beyond lookup and load-time validation.

# Resource Definition

A minimal resource definition in YAML:

	resource: contacts

	schema:
	  ref:      { type: string, required: true, unique: true, constraints: [{ type: min_length, value: 25 }] }
	  title:    { type: string, default: Mr. }
	  slug:     { type: string, computed: ref }
	  person:   { type: string, relation: { resource: people } }
	  location:
	    type: dict
	    schema:
	      address: { type: string }
	      city:    { type: string, required: true }
	  scores:
	    type: dict
	    keys:
	      - pattern: "^k[0-9]+$"
	        schema: { type: integer }

# Field Types

  - string, integer, float, number, boolean, datetime, uuid, any
  - dict:  nested document (schema) or mapping with key rules (keys)
  - list:  homogeneous (items) or fixed-length (tuple)

Every field falls into exactly one Kind (scalar, list, keyed, document or
reference); validation dispatches on that tag.

# Defaults and Dependencies

A field with a default receives it whenever it is absent from a submission,
even when the default is "", 0 or false. A computed field copies the final
value of a sibling. Dependencies name siblings that must be present whenever
the field is; together with computed sources they form the graph the resolver
evaluates in topological order.

# Parsing

Load resources from YAML:

	res, err := schema.ParseFile("resources/contacts.yaml")
	domain, err := schema.ParseDir("resources/")

All resources are validated on parse. Invalid resources return an error.
*/
package schema
