// facecast streams tracked faces from a sensor device to a UDP receiver.
package main

func main() {
	Execute()
}
