// Write initrd images as cpio "newc" formatted archives.
//
// Every member is a 110 byte header of fixed width hexadecimal fields, the
// member's name with a trailing 0, and the member's data, with zero padding
// after the name and after the data. The archive ends with a member named
// [TrailerFilename]. How the padding is computed depends on the [Layout]:
// [BlockAligned] suits loaders that pad each field on its own length, while
// [OffsetAligned] follows the [documented kernel buffer format].
//
// [Writer.WriteTree] serializes a whole directory tree in a deterministic
// order. A [Reader] is provided to check the result.
//
// [documented kernel buffer format]: https://www.kernel.org/doc/html/latest/driver-api/early-userspace/buffer-format.html
package initramfs
