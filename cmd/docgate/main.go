// Package main is the entry point for docgate.
//
//	@title			docgate - Schema-Governed Document Writes
//	@version		1.0
//	@description	Validates, defaults, stamps and persists documents against declarative resource schemas.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@BasePath		/
package main

func main() {
	Execute()
}
