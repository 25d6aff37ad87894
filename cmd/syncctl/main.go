// Command syncctl runs one-off operator tasks against the sync engine.
package main

func main() {
	Execute()
}
