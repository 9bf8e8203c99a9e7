// Command scenarioctl discovers deployment migrations, enumerates every
// combination of them and runs scenarios against each resulting world.
package main

func main() {
	Execute()
}
